package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConversation_SameForEitherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsActive)
	assert.Equal(t, "alice", first.User1ID)
	assert.Equal(t, "bob", first.User2ID)

	second, created, err := f.svc.GetOrCreateConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateConversation_RejectsSelfAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.GetOrCreateConversation(ctx, "alice", "alice")
	assert.ErrorIs(t, err, apperr.ErrSelfConversation)

	_, _, err = f.svc.GetOrCreateConversation(ctx, "alice", "")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestGetOrCreateConversation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = map[string]int{}
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, isNew, err := f.svc.GetOrCreateConversation(ctx, a, b)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[conv.ID]++
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, seen, 1)
	assert.Equal(t, 1, created)
}

func TestListVisibleConversations_ActiveAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withBob := f.conversation(t, "alice", "bob")
	withCarol := f.conversation(t, "alice", "carol")
	f.conversation(t, "alice", "dave") // never written to

	f.send(t, withBob.ID, "bob", "hi")
	f.clock.Advance(time.Second)
	f.send(t, withCarol.ID, "carol", "hey")

	convs, err := f.svc.ListVisibleConversations(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{withCarol.ID, withBob.ID}, convIDs(convs))

	f.clock.Advance(time.Second)
	f.send(t, withBob.ID, "alice", "back to you")

	convs, err = f.svc.ListVisibleConversations(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{withBob.ID}, convIDs(convs))

	convs, err = f.svc.ListVisibleConversations(ctx, "erin", 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMarkDeletedForUser_CutoffHidesOnlyOlderMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	m1 := f.send(t, conv.ID, "alice", "one")
	f.clock.Advance(time.Second)
	m2 := f.send(t, conv.ID, "bob", "two")
	f.clock.Advance(500 * time.Millisecond)

	purged, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, purged)

	f.clock.Advance(500 * time.Millisecond)
	m3 := f.send(t, conv.ID, "bob", "three")

	page, err := f.svc.ListMessagesForUser(ctx, conv.ID, "alice", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{m3.ID}, ids(page.Messages))

	page, err = f.svc.ListMessagesForUser(ctx, conv.ID, "bob", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{m3.ID, m2.ID, m1.ID}, ids(page.Messages))
}

func TestMarkDeletedForUser_HiddenUntilNewMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")
	f.send(t, conv.ID, "bob", "hello")

	_, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)

	convs, err := f.svc.ListVisibleConversations(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, convs)

	convs, err = f.svc.ListVisibleConversations(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{conv.ID}, convIDs(convs))

	// Same clock reading as the cutoff: the new message still lands after it.
	msg := f.send(t, conv.ID, "bob", "are you there?")

	convs, err = f.svc.ListVisibleConversations(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{conv.ID}, convIDs(convs))

	page, err := f.svc.ListMessagesForUser(ctx, conv.ID, "alice", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{msg.ID}, ids(page.Messages))
}

func TestCreateMessage_SenderReappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")
	f.send(t, conv.ID, "bob", "hello")

	_, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	mine := f.send(t, conv.ID, "alice", "starting over")

	var rec models.DeletionRecord
	require.NoError(t, f.svc.DB.Where("conversation_id = ? AND user_id = ?", conv.ID, "alice").Take(&rec).Error)
	assert.False(t, rec.Hidden)

	page, err := f.svc.ListMessagesForUser(ctx, conv.ID, "alice", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{mine.ID}, ids(page.Messages))
}

func TestMarkDeletedForUser_MutualPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.svc.CreateMessage(ctx, conv.ID, "alice", "look", []models.AttachmentInput{
		{File: "uploads/cat.jpg", MediaType: "image/jpeg"},
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	purged, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, purged)

	purged, err = f.svc.MarkDeletedForUser(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, purged)

	_, err = f.svc.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, apperr.ErrConversationNotFound)

	var count int64
	require.NoError(t, f.svc.DB.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.svc.DB.Model(&models.Attachment{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.svc.DB.Model(&models.DeletionRecord{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, []string{"uploads/cat.jpg"}, f.files.Removed())

	fresh, created, err := f.svc.GetOrCreateConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, fresh.ID)
	assert.False(t, fresh.IsActive)
}

func TestMarkDeletedForUser_NoPurgeWhenNewerMessageExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")
	f.send(t, conv.ID, "alice", "one")

	_, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	f.send(t, conv.ID, "bob", "two")

	// Bob deletes after his own newer message: both cutoffs now cover it,
	// but alice's cutoff predates it.
	f.clock.Advance(time.Second)
	purged, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.False(t, purged)

	_, err = f.svc.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)

	// Once alice deletes again, nothing is newer than either cutoff.
	f.clock.Advance(time.Second)
	purged, err = f.svc.MarkDeletedForUser(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, purged)
}

func TestMarkDeletedForUser_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.svc.MarkDeletedForUser(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	_, err = f.svc.MarkDeletedForUser(ctx, "missing", "alice")
	assert.ErrorIs(t, err, apperr.ErrConversationNotFound)
}

func TestSweepMutualDeletions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")
	f.send(t, conv.ID, "alice", "one")
	f.clock.Advance(time.Second)

	// Records written around the purge check, as two racing requests could.
	cutoff := f.clock.Now()
	require.NoError(t, f.svc.DB.Create(&models.DeletionRecord{ConversationID: conv.ID, UserID: "alice", Cutoff: cutoff, Hidden: true}).Error)
	require.NoError(t, f.svc.DB.Create(&models.DeletionRecord{ConversationID: conv.ID, UserID: "bob", Cutoff: cutoff, Hidden: true}).Error)

	n, err := f.svc.SweepMutualDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.SweepMutualDeletions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActivateConversation_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	require.NoError(t, f.svc.ActivateConversation(ctx, conv.ID))
	require.NoError(t, f.svc.ActivateConversation(ctx, conv.ID))

	got, err := f.svc.GetConversationForUser(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = f.svc.GetConversationForUser(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
}
