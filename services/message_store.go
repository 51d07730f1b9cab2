package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"messenger/db"
	"messenger/logger"
	"messenger/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	maxTextLength  = 4096
	maxNonceLength = 128
)

// Content - содержимое сообщения: либо текст, либо медиа по пути из blob store
type Content struct {
	Kind models.ContentKind
	Text string
	Path string
}

func TextContent(text string) Content {
	return Content{Kind: models.KindText, Text: text}
}

// MediaContent - медиа с необязательной подписью
func MediaContent(kind models.ContentKind, path, caption string) Content {
	return Content{Kind: kind, Path: path, Text: caption}
}

func (c Content) validate() error {
	if !c.Kind.Valid() {
		return validationError("unknown content kind %q", c.Kind)
	}
	if utf8.RuneCountInString(c.Text) > maxTextLength {
		return validationError("text is longer than %d characters", maxTextLength)
	}
	if c.Kind == models.KindText {
		if strings.TrimSpace(c.Text) == "" {
			return validationError("text message is empty")
		}
		if c.Path != "" {
			return validationError("text message must not carry media path")
		}
		return nil
	}
	if strings.TrimSpace(c.Path) == "" {
		return validationError("%s message requires media path", c.Kind)
	}
	return nil
}

// Page - окно чтения диалога. After и Before включительные, клиент
// убирает повторы по id
type Page struct {
	After  *time.Time
	Before *time.Time
	Limit  int
}

// CreateParams - параметры нового сообщения
type CreateParams struct {
	Sender    string
	Recipient string
	Content   Content
	ReplyTo   string
	// ClientNonce делает повторную отправку идемпотентной в пределах отправителя
	ClientNonce string
}

// MessageStore хранит сообщения. Все изменения - одиночные условные UPDATE,
// состояние прочтения и удаления нигде больше не дублируется
type MessageStore struct {
	db     *gorm.DB
	now    func() time.Time
	newID  func() string
	events EventPublisher

	defaultPage int
	maxPage     int
}

func NewMessageStore(orm *gorm.DB, events EventPublisher) *MessageStore {
	if events == nil {
		events = NopPublisher{}
	}
	return &MessageStore{
		db:          orm,
		now:         utcNow,
		newID:       uuid.NewString,
		events:      events,
		defaultPage: DefaultPageSize,
		maxPage:     MaxPageSize,
	}
}

// SetPageLimits переопределяет размеры страницы из конфига
func (s *MessageStore) SetPageLimits(defaultSize, maxSize int) {
	if defaultSize > 0 {
		s.defaultPage = defaultSize
	}
	if maxSize > 0 {
		s.maxPage = maxSize
	}
	if s.defaultPage > s.maxPage {
		s.defaultPage = s.maxPage
	}
}

func utcNow() time.Time {
	// Точность postgres - микросекунды
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Create сохраняет новое сообщение непрочитанным
func (s *MessageStore) Create(ctx context.Context, p CreateParams) (*models.Message, error) {
	msg, _, err := s.insert(ctx, p, nil)
	return msg, err
}

// CreateOnce как Create, но повтор с тем же ClientNonce возвращает уже
// сохранённое сообщение и replayed=true
func (s *MessageStore) CreateOnce(ctx context.Context, p CreateParams) (msg *models.Message, replayed bool, err error) {
	return s.insert(ctx, p, nil)
}

func (s *MessageStore) insert(ctx context.Context, p CreateParams, forwardedFrom *string) (*models.Message, bool, error) {
	if err := ValidateUserID(p.Sender); err != nil {
		return nil, false, err
	}
	if err := ValidateUserID(p.Recipient); err != nil {
		return nil, false, err
	}
	if p.Sender == p.Recipient {
		return nil, false, validationError("sender and recipient must differ")
	}
	if err := p.Content.validate(); err != nil {
		return nil, false, err
	}
	if len(p.ClientNonce) > maxNonceLength {
		return nil, false, validationError("client nonce is longer than %d characters", maxNonceLength)
	}

	msg := &models.Message{
		ID:              s.newID(),
		SenderID:        p.Sender,
		RecipientID:     p.Recipient,
		ConversationKey: ConversationKey(p.Sender, p.Recipient),
		Kind:            p.Content.Kind,
		Text:            p.Content.Text,
		MediaPath:       p.Content.Path,
		ForwardedFromID: forwardedFrom,
		CreatedAt:       s.now(),
		Reactions:       []models.Reaction{},
	}

	if p.ReplyTo != "" {
		parent, err := s.Get(ctx, p.ReplyTo)
		if err != nil {
			return nil, false, err
		}
		if parent.ConversationKey != msg.ConversationKey {
			return nil, false, mismatchError("message %s belongs to another conversation", p.ReplyTo)
		}
		quote, err := models.NewQuote(parent)
		if err != nil {
			return nil, false, fmt.Errorf("failed to snapshot quote: %w", err)
		}
		msg.ReplyToID = &parent.ID
		msg.Quote = quote
	}

	if p.ClientNonce == "" {
		if err := db.Writer(ctx, s.db).Omit(clause.Associations).Create(msg).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create message: %w", err)
		}
		s.publishSent(ctx, msg)
		return msg, false, nil
	}

	nonce := p.ClientNonce
	msg.ClientNonce = &nonce
	res := db.Writer(ctx, s.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sender_id"}, {Name: "client_nonce"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create message: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		s.publishSent(ctx, msg)
		return msg, false, nil
	}

	// Повтор: отдаём то, что сохранили в первый раз
	var existing models.Message
	err := db.Writer(ctx, s.db).
		Preload("Reactions", orderReactions).
		Where("sender_id = ? AND client_nonce = ?", p.Sender, nonce).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to load replayed message: %w", err)
	}
	if existing.RecipientID != p.Recipient {
		return nil, false, validationError("client nonce %q was already used for another conversation", nonce)
	}
	return &existing, true, nil
}

// Get возвращает сообщение; удалённые считаются отсутствующими
func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := db.Writer(ctx, s.db).
		Preload("Reactions", orderReactions).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &msg, nil
}

// GetForAudit возвращает сообщение вместе с удалёнными
func (s *MessageStore) GetForAudit(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := db.Writer(ctx, s.db).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &msg, nil
}

// ListConversation возвращает неудалённые сообщения пары от старых к новым.
// С After - первые Limit сообщений начиная с After; иначе последние Limit
// (до Before, если задан)
func (s *MessageStore) ListConversation(ctx context.Context, a, b string, page Page) ([]models.Message, error) {
	if err := ValidateUserID(a); err != nil {
		return nil, err
	}
	if err := ValidateUserID(b); err != nil {
		return nil, err
	}
	if page.After != nil && page.Before != nil && page.After.After(*page.Before) {
		return nil, validationError("after must not be later than before")
	}

	limit := page.Limit
	if limit <= 0 {
		limit = s.defaultPage
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}

	query := db.Writer(ctx, s.db).
		Preload("Reactions", orderReactions).
		Where("conversation_key = ? AND is_deleted = ?", ConversationKey(a, b), false)
	if page.Before != nil {
		query = query.Where("created_at <= ?", page.Before.UTC())
	}

	var messages []models.Message
	if page.After != nil {
		err := query.Where("created_at >= ?", page.After.UTC()).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&messages).Error
		if err != nil {
			return nil, fmt.Errorf("failed to list conversation: %w", err)
		}
		return messages, nil
	}

	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	// Разворачиваем в хронологический порядок
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SoftDelete скрывает сообщение. Удалить может только отправитель
func (s *MessageStore) SoftDelete(ctx context.Context, id, requester string) error {
	now := s.now()
	res := db.Writer(ctx, s.db).Model(&models.Message{}).
		Where("id = ? AND sender_id = ? AND is_deleted = ?", id, requester, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to delete message: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		msg, err := s.GetForAudit(ctx, id)
		if err == nil {
			s.publish(ctx, Event{
				Type:            EventMessageDeleted,
				MessageID:       id,
				ConversationKey: msg.ConversationKey,
				ActorID:         requester,
				RecipientID:     msg.RecipientID,
				OccurredAt:      now,
			})
		}
		return nil
	}

	// Ничего не обновили: разбираемся почему
	msg, err := s.GetForAudit(ctx, id)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return notFoundError("message %s not found", id)
	}
	return authorizationError("only the sender can delete message %s", id)
}

// Forward пересылает копию сообщения от имени requester. Переслать можно
// только сообщение из своего диалога
func (s *MessageStore) Forward(ctx context.Context, originalID, toRecipient, requester string) (*models.Message, error) {
	original, err := s.Get(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if !original.HasParticipant(requester) {
		return nil, authorizationError("message %s is not in your conversations", originalID)
	}

	msg, _, err := s.insert(ctx, CreateParams{
		Sender:    requester,
		Recipient: toRecipient,
		Content: Content{
			Kind: original.Kind,
			Text: original.Text,
			Path: original.MediaPath,
		},
	}, &original.ID)
	return msg, err
}

// AddReply отвечает на сообщение в том же диалоге; получатель - собеседник
func (s *MessageStore) AddReply(ctx context.Context, parentID, sender string, content Content) (*models.Message, error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.HasParticipant(sender) {
		return nil, mismatchError("message %s belongs to another conversation", parentID)
	}
	return s.Create(ctx, CreateParams{
		Sender:    sender,
		Recipient: parent.OtherParticipant(sender),
		Content:   content,
		ReplyTo:   parent.ID,
	})
}

func orderReactions(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC, reactor_id ASC")
}

func (s *MessageStore) publishSent(ctx context.Context, msg *models.Message) {
	logger.Log.Debug("message stored",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.SenderID),
		zap.String("recipient", msg.RecipientID),
		zap.String("conversation", msg.ConversationKey))
	s.publish(ctx, Event{
		Type:            EventMessageSent,
		MessageID:       msg.ID,
		ConversationKey: msg.ConversationKey,
		ActorID:         msg.SenderID,
		RecipientID:     msg.RecipientID,
		Kind:            msg.Kind,
		Preview:         preview(msg.Text),
		OccurredAt:      msg.CreatedAt,
	})
}
