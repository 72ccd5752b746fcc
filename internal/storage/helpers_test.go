package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"socialdm/backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type recordingFiles struct {
	mu      sync.Mutex
	removed []string
}

func (f *recordingFiles) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	f.removed = append(f.removed, ref)
	f.mu.Unlock()
	return nil
}

func (f *recordingFiles) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

type fixture struct {
	svc   *Service
	clock *testClock
	files *recordingFiles
}

// newFixture opens a private in-memory SQLite database. One connection keeps
// the whole test on the same database.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	files := &recordingFiles{}
	svc := NewStorageService(db, nil, files, zerolog.Nop())
	require.NoError(t, svc.Migrate())

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.SetClock(clock.Now)

	return &fixture{svc: svc, clock: clock, files: files}
}

func (f *fixture) user(t *testing.T, username, privacy string) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, MessagePrivacy: privacy}
	require.NoError(t, f.svc.DB.Create(u).Error)
	return u
}

func (f *fixture) conversation(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	conv, _, err := f.svc.GetOrCreateConversation(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (f *fixture) send(t *testing.T, convID, sender, text string) *models.Message {
	t.Helper()
	msg, err := f.svc.CreateMessage(context.Background(), convID, sender, text, nil)
	require.NoError(t, err)
	return msg
}

func ids(msgs []models.Message) []uint {
	out := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func convIDs(convs []models.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
