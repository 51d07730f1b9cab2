package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"messenger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticContacts map[string][]string

func (s staticContacts) Contacts(_ context.Context, userID string) ([]string, error) {
	return s[userID], nil
}

type failingContacts struct{}

func (failingContacts) Contacts(context.Context, string) ([]string, error) {
	return nil, upstreamError("contacts are down")
}

type staticProfiles map[string]*Profile

func (s staticProfiles) Profile(_ context.Context, userID string) (*Profile, error) {
	if p, ok := s[userID]; ok {
		return p, nil
	}
	return nil, notFoundError("user %s not found", userID)
}

type failingProfiles struct{}

func (failingProfiles) Profile(context.Context, string) (*Profile, error) {
	return nil, upstreamError("directory is down")
}

type memoryBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memoryBlobs) Put(_ context.Context, r io.Reader, ext string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path := "/assets/messages/test/" + string(rune('a'+len(m.files))) + ext
	m.files[path] = data
	return path, nil
}

func (m *memoryBlobs) Resolve(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return validationError("media path %q is not stored", p)
	}
	return nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func setupDelivery(t *testing.T, contacts ContactSource, profiles ProfileDirectory) (*Delivery, *memoryBlobs) {
	t.Helper()
	store, _ := setupStore(t)
	blobs := &memoryBlobs{files: map[string][]byte{}}
	return NewDelivery(store, contacts, profiles, blobs), blobs
}

func TestDeliverySendAndPoll(t *testing.T) {
	profiles := staticProfiles{"alice": {ID: "alice", DisplayName: "Alice"}}
	d, _ := setupDelivery(t, nil, profiles)
	ctx := context.Background()

	sent, err := d.Send(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: TextContent("hi"), ClientNonce: "c1"})
	require.NoError(t, err)
	assert.False(t, sent.Replayed)
	require.NotNil(t, sent.Message.SenderProfile)
	assert.Equal(t, "Alice", sent.Message.SenderProfile.DisplayName)

	replay, err := d.Send(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: TextContent("hi"), ClientNonce: "c1"})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, sent.Message.ID, replay.Message.ID)

	page, err := d.Poll(ctx, "bob", "alice", Page{}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.MarkedRead)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsRead)
	require.NotNil(t, page.NextAfter)
	assert.True(t, page.NextAfter.Equal(sent.Message.CreatedAt))
	assert.Equal(t, DefaultConversationPoll, page.PollInterval)

	// Курсор включительный: последнее виденное сообщение приходит повторно
	_, err = d.Send(ctx, SendRequest{Sender: "bob", Recipient: "alice", Content: TextContent("yo")})
	require.NoError(t, err)
	next, err := d.Poll(ctx, "bob", "alice", Page{After: page.NextAfter}, false)
	require.NoError(t, err)
	assert.Len(t, next.Messages, 2)
	assert.Nil(t, next.Messages[1].SenderProfile)

	unread, err := d.Tracker.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestDeliveryDegradesWithoutProfiles(t *testing.T) {
	d, _ := setupDelivery(t, failingContacts{}, failingProfiles{})
	ctx := context.Background()

	sent, err := d.Send(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: TextContent("hi")})
	require.NoError(t, err)
	assert.Nil(t, sent.Message.SenderProfile)

	recent, err := d.Recent(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, recent.Conversations, 1)
	assert.Equal(t, "alice", recent.Conversations[0].OtherParticipant)
	assert.Equal(t, int64(1), recent.Conversations[0].UnreadCount)
	assert.Nil(t, recent.Conversations[0].OtherProfile)
	assert.Equal(t, DefaultRecentPoll, recent.PollInterval)
}

func TestDeliveryRecentWithPlaceholders(t *testing.T) {
	contacts := staticContacts{"alice": {"bob", "carol"}}
	profiles := staticProfiles{"carol": {ID: "carol", DisplayName: "Carol"}}
	d, _ := setupDelivery(t, contacts, profiles)
	ctx := context.Background()

	_, err := d.Send(ctx, SendRequest{Sender: "bob", Recipient: "alice", Content: TextContent("hi")})
	require.NoError(t, err)

	recent, err := d.Recent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, recent.Conversations, 2)
	assert.Equal(t, "bob", recent.Conversations[0].OtherParticipant)
	assert.False(t, recent.Conversations[0].Placeholder)
	assert.Equal(t, "carol", recent.Conversations[1].OtherParticipant)
	assert.True(t, recent.Conversations[1].Placeholder)
	require.NotNil(t, recent.Conversations[1].OtherProfile)
	assert.Equal(t, "Carol", recent.Conversations[1].OtherProfile.DisplayName)
}

func TestDeliveryUpload(t *testing.T) {
	d, blobs := setupDelivery(t, nil, nil)
	ctx := context.Background()

	file := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)
	sent, err := d.Upload(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: TextContent("caption")}, bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, sent.Message.Kind)
	assert.Equal(t, "caption", sent.Message.Text)
	assert.True(t, strings.HasSuffix(sent.Message.MediaPath, ".png"))
	assert.Equal(t, file, blobs.files[sent.Message.MediaPath])

	doc, err := d.Upload(ctx, SendRequest{Sender: "alice", Recipient: "bob"}, strings.NewReader("plain notes"))
	require.NoError(t, err)
	assert.Equal(t, models.KindDocument, doc.Message.Kind)

	_, err = d.Upload(ctx, SendRequest{Sender: "alice", Recipient: "bob"}, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.Upload(ctx, SendRequest{Sender: "alice", Recipient: "alice"}, bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeliveryUploadWithoutBlobStore(t *testing.T) {
	store, _ := setupStore(t)
	d := NewDelivery(store, nil, nil, nil)

	_, err := d.Upload(context.Background(), SendRequest{Sender: "alice", Recipient: "bob"}, bytes.NewReader(pngHeader))
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestDeliveryRejectsUnresolvedMediaPath(t *testing.T) {
	d, blobs := setupDelivery(t, nil, nil)
	ctx := context.Background()

	for _, p := range []string{"../../../etc/passwd", "/assets/messages/test/missing.png"} {
		_, err := d.Send(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: MediaContent(models.KindImage, p, "")})
		assert.ErrorIs(t, err, ErrValidation, p)
	}

	uploaded, err := d.Upload(ctx, SendRequest{Sender: "alice", Recipient: "bob"}, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.Contains(t, blobs.files, uploaded.Message.MediaPath)

	// Уже сохранённый файл можно отправить повторно
	again, err := d.Send(ctx, SendRequest{Sender: "bob", Recipient: "alice", Content: MediaContent(models.KindImage, uploaded.Message.MediaPath, "again")})
	require.NoError(t, err)
	assert.Equal(t, uploaded.Message.MediaPath, again.Message.MediaPath)

	_, err = d.Reply(ctx, uploaded.Message.ID, "bob", MediaContent(models.KindImage, "../../../etc/passwd", ""))
	assert.ErrorIs(t, err, ErrValidation)

	reply, err := d.Reply(ctx, uploaded.Message.ID, "bob", TextContent("nice"))
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, uploaded.Message.ID, *reply.ReplyToID)

	unread, err := d.Tracker.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	noBlobs := NewDelivery(d.Store, nil, nil, nil)
	_, err = noBlobs.Send(ctx, SendRequest{Sender: "alice", Recipient: "bob", Content: MediaContent(models.KindImage, uploaded.Message.MediaPath, "")})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
