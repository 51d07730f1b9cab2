package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"messenger/db"
	"messenger/models"
)

// KeySeparator не может встречаться в id пользователя (см. ValidateUserID)
const KeySeparator = ":"

const maxUserIDLength = 64

// ConversationKey возвращает ключ диалога для пары пользователей.
// Порядок аргументов не важен: key(a, b) == key(b, a)
func ConversationKey(a, b string) string {
	// Обеспечиваем детерминированный порядок
	if a > b {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// ValidateUserID проверяет, что id пригоден для построения ключа диалога
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return validationError("user id is empty")
	}
	if len(id) > maxUserIDLength {
		return validationError("user id is longer than %d characters", maxUserIDLength)
	}
	if strings.Contains(id, KeySeparator) {
		return validationError("user id must not contain %q", KeySeparator)
	}
	return nil
}

// RecentConversation - строка списка диалогов пользователя
type RecentConversation struct {
	OtherParticipant string          `json:"other_participant"`
	ConversationKey  string          `json:"conversation_key"`
	LastMessage      *models.Message `json:"last_message"`
	UnreadCount      int64           `json:"unread_count"`
	// Placeholder - контакт без сообщений, LastMessage синтетический
	Placeholder bool `json:"placeholder"`
}

// ConversationIndex отвечает на вопрос "какие у меня диалоги" агрегацией по
// таблице сообщений. Отдельной таблицы диалогов нет
type ConversationIndex struct {
	store *MessageStore
}

func NewConversationIndex(store *MessageStore) *ConversationIndex {
	return &ConversationIndex{store: store}
}

// recentRow - последнее сообщение диалога и число непрочитанных,
// посчитанные одним запросом
type recentRow struct {
	ID          string
	UnreadCount int64
}

// ListRecent возвращает диалоги viewer: последнее неудалённое сообщение и число
// непрочитанных для viewer. Контакты без переписки добавляются заглушками.
// Сначала настоящие диалоги по убыванию времени, потом заглушки.
// limit <= 0 - без ограничения.
func (ci *ConversationIndex) ListRecent(ctx context.Context, viewer string, contacts []string, limit int) ([]RecentConversation, error) {
	if err := ValidateUserID(viewer); err != nil {
		return nil, err
	}

	ranked := db.Writer(ctx, ci.store.db).Model(&models.Message{}).
		Select("messages.*, ROW_NUMBER() OVER (PARTITION BY conversation_key ORDER BY created_at DESC, id DESC) AS rn").
		Where("(sender_id = ? OR recipient_id = ?) AND is_deleted = ?", viewer, viewer, false)

	var rows []recentRow
	err := db.Writer(ctx, ci.store.db).
		Table("(?) AS ranked", ranked).
		Select(`ranked.id, (
			SELECT COUNT(*) FROM messages u
			WHERE u.conversation_key = ranked.conversation_key
				AND u.recipient_id = ? AND u.is_read = ? AND u.is_deleted = ?
		) AS unread_count`, viewer, false, false).
		Where("ranked.rn = ?", 1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversations: %w", err)
	}

	unread := make(map[string]int64, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		unread[row.ID] = row.UnreadCount
		ids = append(ids, row.ID)
	}

	var last []models.Message
	if len(ids) > 0 {
		err = db.Writer(ctx, ci.store.db).
			Preload("Reactions", orderReactions).
			Where("id IN ?", ids).
			Find(&last).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load last messages: %w", err)
		}
	}

	result := make([]RecentConversation, 0, len(last)+len(contacts))
	seen := make(map[string]struct{}, len(last))
	for i := range last {
		msg := &last[i]
		other := msg.OtherParticipant(viewer)
		seen[other] = struct{}{}
		result = append(result, RecentConversation{
			OtherParticipant: other,
			ConversationKey:  msg.ConversationKey,
			LastMessage:      msg,
			UnreadCount:      unread[msg.ID],
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].LastMessage, result[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	placeholders := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		if contact == viewer || ValidateUserID(contact) != nil {
			continue
		}
		if _, ok := seen[contact]; ok {
			continue
		}
		seen[contact] = struct{}{}
		placeholders = append(placeholders, contact)
	}
	sort.Strings(placeholders)

	now := ci.store.now()
	for _, contact := range placeholders {
		result = append(result, placeholderConversation(viewer, contact, now))
	}

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// placeholderConversation - заглушка "сообщений пока нет"; в базе не хранится
func placeholderConversation(viewer, contact string, now time.Time) RecentConversation {
	key := ConversationKey(viewer, contact)
	return RecentConversation{
		OtherParticipant: contact,
		ConversationKey:  key,
		LastMessage: &models.Message{
			ConversationKey: key,
			Kind:            models.KindText,
			IsRead:          true,
			ReadAt:          &now,
			CreatedAt:       now,
			Reactions:       []models.Reaction{},
		},
		UnreadCount: 0,
		Placeholder: true,
	}
}
