package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"messenger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateValidation(t *testing.T) {
	store, events := setupStore(t)
	ctx := context.Background()

	cases := map[string]CreateParams{
		"self":          {Sender: "a", Recipient: "a", Content: TextContent("hi")},
		"empty text":    {Sender: "a", Recipient: "b", Content: TextContent("  ")},
		"bad sender":    {Sender: "a:1", Recipient: "b", Content: TextContent("hi")},
		"media no path": {Sender: "a", Recipient: "b", Content: MediaContent(models.KindImage, "", "")},
		"unknown kind":  {Sender: "a", Recipient: "b", Content: Content{Kind: "sticker", Text: "x"}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Create(ctx, p)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, events.types())
}

func TestCreateCountsTextLengthInCharacters(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	cyrillic := strings.Repeat("ж", 3000)
	msg, err := store.Create(ctx, CreateParams{Sender: "a", Recipient: "b", Content: TextContent(cyrillic)})
	require.NoError(t, err)
	assert.Equal(t, cyrillic, msg.Text)

	_, err = store.Create(ctx, CreateParams{Sender: "a", Recipient: "b", Content: TextContent(strings.Repeat("ж", maxTextLength+1))})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateAndGet(t *testing.T) {
	store, events := setupStore(t)
	ctx := context.Background()

	msg := sendText(t, store, "alice", "bob", "hello")
	assert.Equal(t, "alice:bob", msg.ConversationKey)
	assert.False(t, msg.IsRead)

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, models.KindText, got.Kind)
	assert.True(t, msg.CreatedAt.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{EventMessageSent}, events.types())
	assert.Equal(t, "user.bob.message.sent", events.events[0].RoutingKey())
}

func TestCreateOnceDeduplicatesByNonce(t *testing.T) {
	store, events := setupStore(t)
	ctx := context.Background()
	p := CreateParams{Sender: "a", Recipient: "b", Content: TextContent("once"), ClientNonce: "n-1"}

	first, replayed, err := store.CreateOnce(ctx, p)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := store.CreateOnce(ctx, p)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	list, err := store.ListConversation(ctx, "a", "b", Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, events.types(), 1)

	// Тот же nonce в другой диалог - ошибка, а не чужое сообщение
	p.Recipient = "c"
	_, _, err = store.CreateOnce(ctx, p)
	assert.ErrorIs(t, err, ErrValidation)

	// Nonce у каждого отправителя свой
	other, replayed, err := store.CreateOnce(ctx, CreateParams{Sender: "b", Recipient: "a", Content: TextContent("mine"), ClientNonce: "n-1"})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestListConversationOrderingAndCursors(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	var sent []*models.Message
	for i := 0; i < 5; i++ {
		from, to := "a", "b"
		if i%2 == 1 {
			from, to = "b", "a"
		}
		sent = append(sent, sendText(t, store, from, to, time.Duration(i).String()))
	}
	sendText(t, store, "a", "c", "other conversation")

	all, err := store.ListConversation(ctx, "b", "a", Page{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := range all {
		assert.Equal(t, sent[i].ID, all[i].ID)
	}

	latest, err := store.ListConversation(ctx, "a", "b", Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, sent[3].ID, latest[0].ID)
	assert.Equal(t, sent[4].ID, latest[1].ID)

	after := sent[2].CreatedAt
	tail, err := store.ListConversation(ctx, "a", "b", Page{After: &after})
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, sent[2].ID, tail[0].ID)

	firstTwo, err := store.ListConversation(ctx, "a", "b", Page{After: &sent[0].CreatedAt, Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstTwo, 2)
	assert.Equal(t, sent[1].ID, firstTwo[1].ID)

	before := sent[1].CreatedAt
	head, err := store.ListConversation(ctx, "a", "b", Page{Before: &before})
	require.NoError(t, err)
	require.Len(t, head, 2)
	assert.Equal(t, sent[0].ID, head[0].ID)

	_, err = store.ListConversation(ctx, "a", "b", Page{After: &after, Before: &before})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListConversationClampsLimit(t *testing.T) {
	store, _ := setupStore(t)
	store.SetPageLimits(2, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sendText(t, store, "a", "b", "m")
	}

	def, err := store.ListConversation(ctx, "a", "b", Page{})
	require.NoError(t, err)
	assert.Len(t, def, 2)

	capped, err := store.ListConversation(ctx, "a", "b", Page{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, capped, 3)
}

func TestSoftDelete(t *testing.T) {
	store, events := setupStore(t)
	tracker := NewReadTracker(store)
	ctx := context.Background()

	msg := sendText(t, store, "a", "b", "oops")

	err := store.SoftDelete(ctx, msg.ID, "b")
	assert.ErrorIs(t, err, ErrAuthorization)

	require.NoError(t, store.SoftDelete(ctx, msg.ID, "a"))

	_, err = store.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	audit, err := store.GetForAudit(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, audit.IsDeleted)
	assert.NotNil(t, audit.DeletedAt)

	list, err := store.ListConversation(ctx, "a", "b", Page{})
	require.NoError(t, err)
	assert.Empty(t, list)

	unread, err := tracker.UnreadCount(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, unread)

	assert.ErrorIs(t, store.SoftDelete(ctx, msg.ID, "a"), ErrNotFound)
	assert.ErrorIs(t, store.SoftDelete(ctx, msg.ID, "b"), ErrNotFound)
	assert.ErrorIs(t, store.SoftDelete(ctx, "missing", "a"), ErrNotFound)

	assert.Equal(t, []string{EventMessageSent, EventMessageDeleted}, events.types())
}

func TestReplyKeepsQuoteAfterParentDeleted(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	parent := sendText(t, store, "a", "b", "question?")
	reply, err := store.AddReply(ctx, parent.ID, "b", TextContent("answer"))
	require.NoError(t, err)
	assert.Equal(t, "a", reply.RecipientID)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, parent.ID, *reply.ReplyToID)

	require.NoError(t, store.SoftDelete(ctx, parent.ID, "a"))

	got, err := store.Get(ctx, reply.ID)
	require.NoError(t, err)
	quote, err := got.QuoteSnapshot()
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "question?", quote.Text)
	assert.Equal(t, "a", quote.SenderID)

	_, err = store.AddReply(ctx, parent.ID, "b", TextContent("too late"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplyAcrossConversationsIsRejected(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	foreign := sendText(t, store, "x", "y", "private")

	_, err := store.Create(ctx, CreateParams{Sender: "a", Recipient: "b", Content: TextContent("re"), ReplyTo: foreign.ID})
	assert.ErrorIs(t, err, ErrConversationMismatch)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.AddReply(ctx, foreign.ID, "a", TextContent("re"))
	assert.ErrorIs(t, err, ErrConversationMismatch)
	assert.Equal(t, KindConversationMismatch, KindOf(err))
}

func TestForward(t *testing.T) {
	store, _ := setupStore(t)
	tracker := NewReadTracker(store)
	ctx := context.Background()

	original, err := store.Create(ctx, CreateParams{
		Sender:    "a",
		Recipient: "b",
		Content:   MediaContent(models.KindImage, "/assets/messages/2024/03/01/cat.png", "look"),
	})
	require.NoError(t, err)

	forwarderBefore, err := tracker.UnreadCount(ctx, "b")
	require.NoError(t, err)
	targetBefore, err := tracker.UnreadCount(ctx, "c")
	require.NoError(t, err)

	fwd, err := store.Forward(ctx, original.ID, "c", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", fwd.SenderID)
	assert.Equal(t, "c", fwd.RecipientID)
	assert.Equal(t, models.KindImage, fwd.Kind)
	assert.Equal(t, original.MediaPath, fwd.MediaPath)
	assert.Equal(t, "look", fwd.Text)
	require.NotNil(t, fwd.ForwardedFromID)
	assert.Equal(t, original.ID, *fwd.ForwardedFromID)

	// Пересылка - новое непрочитанное у получателя, у пересылающего без изменений
	targetAfter, err := tracker.UnreadCount(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, targetBefore+1, targetAfter)
	forwarderAfter, err := tracker.UnreadCount(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, forwarderBefore, forwarderAfter)

	_, err = store.Forward(ctx, original.ID, "a", "mallory")
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = store.Forward(ctx, original.ID, "b", "b")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, store.SoftDelete(ctx, original.ID, "a"))
	_, err = store.Forward(ctx, original.ID, "c", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
