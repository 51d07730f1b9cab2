package services

import (
	"context"
	"fmt"

	"messenger/db"
	"messenger/logger"
	"messenger/models"

	"go.uber.org/zap"
)

// ReadTracker ведёт флаги прочтения. Счётчики непрочитанных не хранятся,
// а каждый раз считаются по тем же строкам, что видит список диалога
type ReadTracker struct {
	store *MessageStore
}

func NewReadTracker(store *MessageStore) *ReadTracker {
	return &ReadTracker{store: store}
}

// MarkConversationRead помечает прочитанными входящие viewer от other,
// созданные не позже момента вызова. Сообщения, пришедшие во время
// выполнения, остаются непрочитанными. Возвращает число помеченных
func (t *ReadTracker) MarkConversationRead(ctx context.Context, viewer, other string) (int64, error) {
	if err := ValidateUserID(viewer); err != nil {
		return 0, err
	}
	if err := ValidateUserID(other); err != nil {
		return 0, err
	}

	cutoff := t.store.now()
	res := db.Writer(ctx, t.store.db).Model(&models.Message{}).
		Where("conversation_key = ? AND recipient_id = ? AND is_read = ? AND is_deleted = ? AND created_at <= ?",
			ConversationKey(viewer, other), viewer, false, false, cutoff).
		Updates(map[string]any{"is_read": true, "read_at": cutoff})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		logger.Log.Debug("conversation marked read",
			zap.String("conversation", ConversationKey(viewer, other)),
			zap.String("viewer", viewer),
			zap.Int64("count", res.RowsAffected))
		t.store.publish(ctx, Event{
			Type:            EventMessageRead,
			ConversationKey: ConversationKey(viewer, other),
			ActorID:         viewer,
			RecipientID:     other,
			Count:           res.RowsAffected,
			OccurredAt:      cutoff,
		})
	}
	return res.RowsAffected, nil
}

// MarkMessageRead помечает одно сообщение. Отметить может только получатель;
// повторный вызов ничего не меняет
func (t *ReadTracker) MarkMessageRead(ctx context.Context, messageID, viewer string) (*models.Message, error) {
	now := t.store.now()
	res := db.Writer(ctx, t.store.db).Model(&models.Message{}).
		Where("id = ? AND recipient_id = ? AND is_read = ? AND is_deleted = ?", messageID, viewer, false, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", res.Error)
	}

	msg, err := t.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != viewer {
		return nil, authorizationError("only the recipient can mark message %s read", messageID)
	}

	if res.RowsAffected == 1 {
		t.store.publish(ctx, Event{
			Type:            EventMessageRead,
			MessageID:       msg.ID,
			ConversationKey: msg.ConversationKey,
			ActorID:         viewer,
			RecipientID:     msg.SenderID,
			Count:           1,
			OccurredAt:      now,
		})
	}
	return msg, nil
}

// UnreadCount - сколько непрочитанных входящих у viewer во всех диалогах
func (t *ReadTracker) UnreadCount(ctx context.Context, viewer string) (int64, error) {
	if err := ValidateUserID(viewer); err != nil {
		return 0, err
	}
	var count int64
	err := db.Writer(ctx, t.store.db).Model(&models.Message{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted = ?", viewer, false, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UnreadCountWith - непрочитанные viewer в диалоге с other
func (t *ReadTracker) UnreadCountWith(ctx context.Context, viewer, other string) (int64, error) {
	if err := ValidateUserID(viewer); err != nil {
		return 0, err
	}
	if err := ValidateUserID(other); err != nil {
		return 0, err
	}
	var count int64
	err := db.Writer(ctx, t.store.db).Model(&models.Message{}).
		Where("conversation_key = ? AND recipient_id = ? AND is_read = ? AND is_deleted = ?",
			ConversationKey(viewer, other), viewer, false, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
