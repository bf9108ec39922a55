package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

// 需要真实数据库：ROOMGATE_TEST_POSTGRES_DSN=postgres://... go test ./internal/storage/postgres
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ROOMGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROOMGATE_TEST_POSTGRES_DSN not set")
	}
	store, err := NewStore(dsn, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMeeting(pin, bridge string) *domain.Meeting {
	id := uuid.NewString()
	return &domain.Meeting{
		ID:              id,
		Identifier:      uuid.NewString(),
		Name:            "Integration " + id[:8],
		AttendeeSecret:  "attendee",
		ModeratorSecret: "moderator",
		OwnerID:         "owner-1",
		Delegates:       []string{"delegate-1"},
		PIN:             pin,
		VoiceBridge:     bridge,
	}
}

func TestStore_MeetingLifecycle(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	meeting := newMeeting("912345671", "912345672")
	require.NoError(t, store.CreateMeeting(ctx, meeting))
	t.Cleanup(func() { _ = store.DeleteMeeting(ctx, meeting.ID, time.Now()) })

	got, err := store.GetMeetingByCode(ctx, "912345671")
	require.NoError(t, err)
	assert.Equal(t, meeting.Identifier, got.Identifier)
	assert.Equal(t, []string{"delegate-1"}, got.Delegates)

	t.Run("跨列冲突", func(t *testing.T) {
		err := store.CreateMeeting(ctx, newMeeting("912345672", "912345673"))
		assert.ErrorIs(t, err, storage.ErrPinConflict)
	})

	t.Run("更新号码", func(t *testing.T) {
		got.VoiceBridge = "912345674"
		retiredAt := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, store.UpdateMeeting(ctx, got, retiredAt))

		codes, err := store.ActiveCodes(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, codes, "912345674")
		assert.NotContains(t, codes, "912345672")

		retired, err := store.RetiredCodes(ctx, retiredAt.Add(-time.Second))
		require.NoError(t, err)
		assert.Contains(t, retired, "912345672")
		assert.NotContains(t, retired, "912345671")
	})

	deletedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.DeleteMeeting(ctx, meeting.ID, deletedAt))
	_, err = store.GetMeeting(ctx, meeting.ID)
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)

	retired, err := store.RetiredCodes(ctx, deletedAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Contains(t, retired, "912345671")
	assert.Contains(t, retired, "912345674")
}

func TestStore_RetiredCodes(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-400 * 24 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.RetireCodes(ctx, []string{"987654321"}, base))

	codes, err := store.RetiredCodes(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Contains(t, codes, "987654321")

	purged, err := store.PurgeRetired(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}
