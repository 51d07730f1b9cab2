package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"messenger/db"
	"messenger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxReactionLength = 32

// Reactions - реакции участников диалога на сообщения
type Reactions struct {
	store *MessageStore
}

func NewReactions(store *MessageStore) *Reactions {
	return &Reactions{store: store}
}

// React ставит или заменяет реакцию reactor на сообщение
func (r *Reactions) React(ctx context.Context, messageID, reactor, kind string) (*models.Message, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, validationError("reaction is empty")
	}
	if utf8.RuneCountInString(kind) > maxReactionLength {
		return nil, validationError("reaction is longer than %d characters", maxReactionLength)
	}

	now := r.store.now()
	var msg models.Message
	err := db.Writer(ctx, r.store.db).Transaction(func(tx *gorm.DB) error {
		// Блокируем сообщение, чтобы удаление не проскочило между проверкой и записью
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ? AND is_deleted = ?", messageID, false).
			First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("message %s not found", messageID)
		}
		if err != nil {
			return fmt.Errorf("failed to load message: %w", err)
		}
		if !msg.HasParticipant(reactor) {
			return authorizationError("only conversation participants can react to message %s", messageID)
		}

		reaction := models.Reaction{
			ID:        r.store.newID(),
			MessageID: messageID,
			ReactorID: reactor,
			Kind:      kind,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "reactor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
		}).Create(&reaction).Error
	})
	if err != nil {
		return nil, err
	}

	r.store.publish(ctx, Event{
		Type:            EventMessageReacted,
		MessageID:       messageID,
		ConversationKey: msg.ConversationKey,
		ActorID:         reactor,
		RecipientID:     msg.OtherParticipant(reactor),
		Reaction:        kind,
		OccurredAt:      now,
	})
	return r.store.Get(ctx, messageID)
}

// RemoveReaction снимает реакцию reactor; если её не было, ничего не делает
func (r *Reactions) RemoveReaction(ctx context.Context, messageID, reactor string) (*models.Message, error) {
	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.HasParticipant(reactor) {
		return nil, authorizationError("only conversation participants can react to message %s", messageID)
	}

	res := db.Writer(ctx, r.store.db).
		Where("message_id = ? AND reactor_id = ?", messageID, reactor).
		Delete(&models.Reaction{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to remove reaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return msg, nil
	}
	return r.store.Get(ctx, messageID)
}
