package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"messenger/db"
	"messenger/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stepClock - часы, которые сдвигаются на миллисекунду при каждом вызове
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	orm, err := db.OpenSQLite(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(orm))
	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return orm
}

func setupStore(t *testing.T) (*MessageStore, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	store := NewMessageStore(setupTestDB(t), events)
	store.now = newStepClock().Now
	return store, events
}

func userID() string {
	return gofakeit.UUID()
}

func sendText(t *testing.T, store *MessageStore, from, to, text string) *models.Message {
	t.Helper()
	msg, err := store.Create(context.Background(), CreateParams{
		Sender:    from,
		Recipient: to,
		Content:   TextContent(text),
	})
	require.NoError(t, err)
	return msg
}
