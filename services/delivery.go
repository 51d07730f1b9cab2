package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"messenger/logger"
	"messenger/models"

	"go.uber.org/zap"
)

const (
	DefaultConversationPoll = 5 * time.Second
	DefaultRecentPoll       = 30 * time.Second
	DefaultRecentLimit      = 20

	// столько байт mimetype читает для определения типа
	sniffLength = 3072
)

// MessageView - сообщение для клиента с профилем отправителя.
// Профиль может отсутствовать, если справочник недоступен
type MessageView struct {
	*models.Message
	SenderProfile *Profile `json:"sender_profile,omitempty"`
}

type RecentView struct {
	RecentConversation
	OtherProfile *Profile `json:"other_profile,omitempty"`
}

// SendRequest - запрос на отправку. ClientNonce необязателен
type SendRequest struct {
	Sender      string
	Recipient   string
	Content     Content
	ReplyTo     string
	ClientNonce string
}

type SendResult struct {
	Message  MessageView
	Replayed bool
}

// ConversationPage - ответ на опрос диалога. NextAfter передаётся клиентом
// в следующем опросе как after
type ConversationPage struct {
	Messages     []MessageView
	NextAfter    *time.Time
	PollInterval time.Duration
	MarkedRead   int64
}

type RecentPage struct {
	Conversations []RecentView
	PollInterval  time.Duration
}

// Delivery - протокол синхронизации поверх хранилища: отправка, опрос
// диалога и списка диалогов с подсказками интервала опроса
type Delivery struct {
	Store     *MessageStore
	Index     *ConversationIndex
	Tracker   *ReadTracker
	Reactions *Reactions

	contacts ContactSource
	profiles ProfileDirectory
	blobs    BlobStore

	ConversationPoll time.Duration
	RecentPoll       time.Duration
}

func NewDelivery(store *MessageStore, contacts ContactSource, profiles ProfileDirectory, blobs BlobStore) *Delivery {
	return &Delivery{
		Store:            store,
		Index:            NewConversationIndex(store),
		Tracker:          NewReadTracker(store),
		Reactions:        NewReactions(store),
		contacts:         contacts,
		profiles:         profiles,
		blobs:            blobs,
		ConversationPoll: DefaultConversationPoll,
		RecentPoll:       DefaultRecentPoll,
	}
}

// Send сохраняет сообщение. Повтор с тем же ClientNonce не создаёт дубликат
func (d *Delivery) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := d.resolveMedia(ctx, req.Content); err != nil {
		return nil, err
	}
	msg, replayed, err := d.Store.CreateOnce(ctx, CreateParams{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Content:     req.Content,
		ReplyTo:     req.ReplyTo,
		ClientNonce: req.ClientNonce,
	})
	if err != nil {
		return nil, err
	}
	views := d.decorate(ctx, []models.Message{*msg})
	return &SendResult{Message: views[0], Replayed: replayed}, nil
}

// Reply - ответ на сообщение parentID в том же диалоге
func (d *Delivery) Reply(ctx context.Context, parentID, sender string, content Content) (*MessageView, error) {
	if err := d.resolveMedia(ctx, content); err != nil {
		return nil, err
	}
	msg, err := d.Store.AddReply(ctx, parentID, sender, content)
	if err != nil {
		return nil, err
	}
	views := d.decorate(ctx, []models.Message{*msg})
	return &views[0], nil
}

// resolveMedia пропускает в сообщение только пути, выданные blob store
func (d *Delivery) resolveMedia(ctx context.Context, content Content) error {
	if !content.Kind.IsMedia() || strings.TrimSpace(content.Path) == "" {
		return nil
	}
	if d.blobs == nil {
		return upstreamError("blob store is not configured")
	}
	return d.blobs.Resolve(ctx, content.Path)
}

// Upload кладёт файл в blob store и отправляет его медиа-сообщением.
// Тип медиа определяется по содержимому
func (d *Delivery) Upload(ctx context.Context, req SendRequest, file io.Reader) (*SendResult, error) {
	if d.blobs == nil {
		return nil, upstreamError("blob store is not configured")
	}
	if err := ValidateUserID(req.Sender); err != nil {
		return nil, err
	}
	if err := ValidateUserID(req.Recipient); err != nil {
		return nil, err
	}
	if req.Sender == req.Recipient {
		return nil, validationError("sender and recipient must differ")
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, validationError("failed to read upload: %v", err)
	}
	if n == 0 {
		return nil, validationError("uploaded file is empty")
	}
	head = head[:n]

	kind, ext := DetectMediaKind(head)
	path, err := d.blobs.Put(ctx, io.MultiReader(bytes.NewReader(head), file), ext)
	if err != nil {
		return nil, err
	}

	req.Content = MediaContent(kind, path, req.Content.Text)
	return d.Send(ctx, req)
}

// Poll отдаёт страницу диалога. С markRead сначала помечает входящие
// прочитанными, поэтому в ответе они уже прочитаны
func (d *Delivery) Poll(ctx context.Context, viewer, other string, page Page, markRead bool) (*ConversationPage, error) {
	if err := ValidateUserID(viewer); err != nil {
		return nil, err
	}
	if err := ValidateUserID(other); err != nil {
		return nil, err
	}

	var marked int64
	if markRead {
		n, err := d.Tracker.MarkConversationRead(ctx, viewer, other)
		if err != nil {
			return nil, err
		}
		marked = n
	}

	messages, err := d.Store.ListConversation(ctx, viewer, other, page)
	if err != nil {
		return nil, err
	}

	result := &ConversationPage{
		Messages:     d.decorate(ctx, messages),
		NextAfter:    page.After,
		PollInterval: d.ConversationPoll,
		MarkedRead:   marked,
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1].CreatedAt
		result.NextAfter = &last
	}
	return result, nil
}

// Recent - список диалогов. Если контакты недоступны, отдаём только
// настоящие диалоги без заглушек
func (d *Delivery) Recent(ctx context.Context, viewer string, limit int) (*RecentPage, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var contacts []string
	if d.contacts != nil {
		list, err := d.contacts.Contacts(ctx, viewer)
		if err != nil {
			logger.Log.Warn("contacts unavailable, skipping placeholders",
				zap.String("user_id", viewer), zap.Error(err))
		} else {
			contacts = list
		}
	}

	conversations, err := d.Index.ListRecent(ctx, viewer, contacts, limit)
	if err != nil {
		return nil, err
	}

	memo := make(map[string]*Profile)
	views := make([]RecentView, len(conversations))
	for i, c := range conversations {
		views[i] = RecentView{
			RecentConversation: c,
			OtherProfile:       d.profile(ctx, c.OtherParticipant, memo),
		}
	}
	return &RecentPage{Conversations: views, PollInterval: d.RecentPoll}, nil
}

// decorate добавляет профили отправителей, каждый запрашивается один раз
func (d *Delivery) decorate(ctx context.Context, messages []models.Message) []MessageView {
	memo := make(map[string]*Profile)
	views := make([]MessageView, len(messages))
	for i := range messages {
		views[i] = MessageView{
			Message:       &messages[i],
			SenderProfile: d.profile(ctx, messages[i].SenderID, memo),
		}
	}
	return views
}

func (d *Delivery) profile(ctx context.Context, userID string, memo map[string]*Profile) *Profile {
	if d.profiles == nil {
		return nil
	}
	if p, ok := memo[userID]; ok {
		return p
	}
	p, err := d.profiles.Profile(ctx, userID)
	if err != nil {
		if KindOf(err) != KindNotFound {
			logger.Log.Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		p = nil
	}
	memo[userID] = p
	return p
}
