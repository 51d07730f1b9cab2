package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ContentKind - тип содержимого сообщения
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindAudio    ContentKind = "audio"
	KindVideo    ContentKind = "video"
	KindDocument ContentKind = "document"
)

func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindAudio, KindVideo, KindDocument:
		return true
	}
	return false
}

func (k ContentKind) IsMedia() bool {
	return k.Valid() && k != KindText
}

// Message представляет сообщение в диалоге между двумя пользователями.
// Текст хранится в Text, для медиа - путь из blob store в MediaPath.
type Message struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	SenderID        string         `gorm:"column:sender_id;size:64;not null;index;uniqueIndex:idx_messages_sender_nonce,priority:1" json:"sender_id"`
	RecipientID     string         `gorm:"column:recipient_id;size:64;not null;index" json:"recipient_id"`
	ConversationKey string         `gorm:"column:conversation_key;size:130;not null;index" json:"conversation_key"`
	Kind            ContentKind    `gorm:"size:16;not null;default:text" json:"kind"`
	Text            string         `gorm:"type:text" json:"text,omitempty"`
	MediaPath       string         `gorm:"size:1024" json:"media_path,omitempty"`
	ReplyToID       *string        `gorm:"column:reply_to_id;size:36;index" json:"reply_to_id,omitempty"`
	Quote           datatypes.JSON `json:"quote,omitempty"`
	ForwardedFromID *string        `gorm:"column:forwarded_from_id;size:36" json:"forwarded_from_id,omitempty"`
	ClientNonce     *string        `gorm:"column:client_nonce;size:128;uniqueIndex:idx_messages_sender_nonce,priority:2" json:"-"`
	IsRead          bool           `gorm:"not null;default:false" json:"is_read"`
	ReadAt          *time.Time     `json:"read_at,omitempty"`
	IsDeleted       bool           `gorm:"not null;default:false" json:"-"`
	DeletedAt       *time.Time     `json:"-"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	Reactions       []Reaction     `gorm:"foreignKey:MessageID" json:"reactions"`
}

// TableName возвращает имя таблицы для модели Message
func (Message) TableName() string {
	return "messages"
}

// Quote - снимок сообщения, на которое ответили. Копируется в момент ответа,
// поэтому удаление оригинала не ломает отображение ответа.
type Quote struct {
	MessageID string      `json:"message_id"`
	SenderID  string      `json:"sender_id"`
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	MediaPath string      `json:"media_path,omitempty"`
}

func NewQuote(parent *Message) (datatypes.JSON, error) {
	raw, err := json.Marshal(Quote{
		MessageID: parent.ID,
		SenderID:  parent.SenderID,
		Kind:      parent.Kind,
		Text:      parent.Text,
		MediaPath: parent.MediaPath,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// QuoteSnapshot разбирает снимок; nil если сообщение не ответ
func (m *Message) QuoteSnapshot() (*Quote, error) {
	if len(m.Quote) == 0 {
		return nil, nil
	}
	var q Quote
	if err := json.Unmarshal(m.Quote, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// OtherParticipant возвращает собеседника для viewer
func (m *Message) OtherParticipant(viewer string) string {
	if m.SenderID == viewer {
		return m.RecipientID
	}
	return m.SenderID
}

func (m *Message) HasParticipant(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Reaction - реакция пользователя на сообщение. Одна на пару (message, reactor)
type Reaction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"-"`
	MessageID string    `gorm:"column:message_id;size:36;not null;uniqueIndex:idx_reactions_message_reactor,priority:1" json:"-"`
	ReactorID string    `gorm:"column:reactor_id;size:64;not null;uniqueIndex:idx_reactions_message_reactor,priority:2" json:"reactor_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Reaction) TableName() string {
	return "message_reactions"
}
