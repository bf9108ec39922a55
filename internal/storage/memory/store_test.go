package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

func newMeeting(id, pin, bridge string) *domain.Meeting {
	return &domain.Meeting{
		ID:              id,
		Identifier:      "ident-" + id,
		Name:            "Room " + id,
		AttendeeSecret:  "attendee",
		ModeratorSecret: "moderator",
		OwnerID:         "owner-1",
		PIN:             pin,
		VoiceBridge:     bridge,
	}
}

func TestMemoryStore_MeetingOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	meeting := newMeeting("m-1", "123456789", "223456789")
	require.NoError(t, store.CreateMeeting(ctx, meeting))
	assert.False(t, meeting.CreatedAt.IsZero())

	got, err := store.GetMeeting(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Room m-1", got.Name)

	got, err = store.GetMeetingByIdentifier(ctx, "ident-m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)

	got, err = store.GetMeetingByCode(ctx, "123456789")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)

	t.Run("语音桥号码不能用于会议码查找", func(t *testing.T) {
		_, err := store.GetMeetingByCode(ctx, "223456789")
		assert.ErrorIs(t, err, storage.ErrMeetingNotFound)
	})

	t.Run("返回副本", func(t *testing.T) {
		got.Name = "changed"
		again, err := store.GetMeeting(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "Room m-1", again.Name)
	})

	deletedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.DeleteMeeting(ctx, "m-1", deletedAt))
	_, err = store.GetMeeting(ctx, "m-1")
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)
	_, err = store.GetMeetingByCode(ctx, "123456789")
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)
	assert.ErrorIs(t, store.DeleteMeeting(ctx, "m-1", deletedAt), storage.ErrMeetingNotFound)

	t.Run("删除时归档拨入码", func(t *testing.T) {
		retired, err := store.RetiredCodes(ctx, deletedAt.Add(-time.Second))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"123456789", "223456789"}, retired)
	})
}

func TestMemoryStore_CodeUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateMeeting(ctx, newMeeting("m-1", "111111111", "222222222")))

	t.Run("PIN 冲突", func(t *testing.T) {
		err := store.CreateMeeting(ctx, newMeeting("m-2", "111111111", "333333333"))
		assert.ErrorIs(t, err, storage.ErrPinConflict)
	})

	t.Run("与其他会议的语音桥号码冲突", func(t *testing.T) {
		err := store.CreateMeeting(ctx, newMeeting("m-2", "222222222", "333333333"))
		assert.ErrorIs(t, err, storage.ErrPinConflict)
	})

	t.Run("重复 ID", func(t *testing.T) {
		err := store.CreateMeeting(ctx, newMeeting("m-1", "444444444", "555555555"))
		assert.ErrorIs(t, err, storage.ErrMeetingExists)
	})

	t.Run("更新时保留自身号码", func(t *testing.T) {
		m, err := store.GetMeeting(ctx, "m-1")
		require.NoError(t, err)
		m.VoiceBridge = "666666666"
		retiredAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpdateMeeting(ctx, m, retiredAt))

		codes, err := store.ActiveCodes(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"111111111", "666666666"}, codes)

		retired, err := store.RetiredCodes(ctx, retiredAt.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, []string{"222222222"}, retired, "只归档不再使用的号码")
	})

	t.Run("更新不存在的会议", func(t *testing.T) {
		err := store.UpdateMeeting(ctx, newMeeting("missing", "777777777", "888888888"), time.Now())
		assert.ErrorIs(t, err, storage.ErrMeetingNotFound)
	})
}

func TestMemoryStore_ActiveCodesExclude(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateMeeting(ctx, newMeeting("m-1", "111111111", "222222222")))
	require.NoError(t, store.CreateMeeting(ctx, newMeeting("m-2", "333333333", "444444444")))

	codes, err := store.ActiveCodes(ctx, "m-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"333333333", "444444444"}, codes)
}

func TestMemoryStore_RetiredCodes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RetireCodes(ctx, []string{"111111111", ""}, base))
	require.NoError(t, store.RetireCodes(ctx, []string{"222222222"}, base.Add(48*time.Hour)))

	codes, err := store.RetiredCodes(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"111111111", "222222222"}, codes)

	codes, err = store.RetiredCodes(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"222222222"}, codes)

	purged, err := store.PurgeRetired(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	purged, err = store.PurgeRetired(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)

	codes, err = store.RetiredCodes(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"222222222"}, codes)
}
