package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/pin"
	"roomgate/backend/internal/storage"
	"roomgate/backend/internal/storage/memory"
)

const (
	testInstallationSecret = "test-installation-secret-0123456789abcdef"
	testPublicURL          = "https://meet.example.com/"
)

// conflictingStore 前 n 次保存返回唯一约束冲突
type conflictingStore struct {
	*memory.Store
	conflicts int
}

func (s *conflictingStore) CreateMeeting(ctx context.Context, meeting *domain.Meeting) error {
	if s.conflicts > 0 {
		s.conflicts--
		return storage.ErrPinConflict
	}
	return s.Store.CreateMeeting(ctx, meeting)
}

type meetingFixture struct {
	service   *MeetingService
	store     *conflictingStore
	clock     *clockwork.FakeClock
	authority *auth.Authority
	resolver  *auth.Resolver
	allocs    []string
}

func newMeetingFixture(t *testing.T) *meetingFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	authority, err := auth.NewAuthority(testInstallationSecret, clock)
	require.NoError(t, err)

	f := &meetingFixture{
		store:     &conflictingStore{Store: memory.NewStore()},
		clock:     clock,
		authority: authority,
		resolver:  auth.NewResolver(authority, true),
	}
	allocator := pin.NewAllocator(f.store, clock, pin.Options{}, nil)
	f.service = NewMeetingService(f.store, allocator, authority, f.resolver, testPublicURL, nil)
	f.service.SetAllocationHook(func(result string) { f.allocs = append(f.allocs, result) })
	return f
}

func (f *meetingFixture) create(t *testing.T) *domain.Meeting {
	t.Helper()
	meeting, err := f.service.Create(context.Background(), CreateMeetingInput{
		Name:    "Weekly sync",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)
	return meeting
}

func TestMeetingService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("分配两个不同的拨入码并生成密钥", func(t *testing.T) {
		f := newMeetingFixture(t)
		meeting := f.create(t)

		assert.Len(t, meeting.PIN, 9)
		assert.Len(t, meeting.VoiceBridge, 9)
		assert.NotEqual(t, meeting.PIN, meeting.VoiceBridge)
		assert.Len(t, meeting.AttendeeSecret, 32)
		assert.Len(t, meeting.ModeratorSecret, 32)
		assert.NotEqual(t, meeting.AttendeeSecret, meeting.ModeratorSecret)
		assert.NotEmpty(t, meeting.Identifier)

		active, err := f.store.ActiveCodes(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{meeting.PIN, meeting.VoiceBridge}, active)
		assert.Equal(t, []string{"ok"}, f.allocs)
	})

	t.Run("名称为空", func(t *testing.T) {
		f := newMeetingFixture(t)
		_, err := f.service.Create(ctx, CreateMeetingInput{Name: "  ", OwnerID: "owner-1"})
		assert.ErrorIs(t, err, ErrInvalidMeetingName)
	})

	t.Run("缺少所有者", func(t *testing.T) {
		f := newMeetingFixture(t)
		_, err := f.service.Create(ctx, CreateMeetingInput{Name: "Room"})
		assert.ErrorIs(t, err, ErrOwnerRequired)
	})

	t.Run("冲突一次后重新分配成功", func(t *testing.T) {
		f := newMeetingFixture(t)
		f.store.conflicts = 1

		meeting := f.create(t)
		assert.NotEmpty(t, meeting.PIN)
		assert.Equal(t, []string{"retried"}, f.allocs)
	})

	t.Run("连续冲突返回分配耗尽", func(t *testing.T) {
		f := newMeetingFixture(t)
		f.store.conflicts = 2

		_, err := f.service.Create(ctx, CreateMeetingInput{Name: "Room", OwnerID: "owner-1"})
		assert.ErrorIs(t, err, domain.ErrAllocationExhausted)
		assert.Equal(t, []string{"exhausted"}, f.allocs)
		assert.Equal(t, 0, f.store.conflicts)
	})
}

func TestMeetingService_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newMeetingFixture(t)
	meeting := f.create(t)

	got, err := f.service.Get(ctx, meeting.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, meeting.ID, got.ID)

	_, err = f.service.Get(ctx, meeting.ID, "someone-else")
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)

	err = f.service.Delete(ctx, meeting.ID, "someone-else")
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)
}

func TestMeetingService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newMeetingFixture(t)
	meeting := f.create(t)

	require.NoError(t, f.service.Delete(ctx, meeting.ID, "owner-1"))

	_, err := f.store.GetMeeting(ctx, meeting.ID)
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)

	retired, err := f.store.RetiredCodes(ctx, f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{meeting.PIN, meeting.VoiceBridge}, retired)
}

// failingDeleteStore 删除事务整体失败
type failingDeleteStore struct {
	*memory.Store
}

func (s *failingDeleteStore) DeleteMeeting(context.Context, string, time.Time) error {
	return errors.New("transaction aborted")
}

func TestMeetingService_DeleteKeepsCodesReserved(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	authority, err := auth.NewAuthority(testInstallationSecret, clock)
	require.NoError(t, err)
	resolver := auth.NewResolver(authority, false)
	firstCode := func(int64) int64 { return 0 }

	t.Run("删除后保留期内不会再分配同一号码", func(t *testing.T) {
		store := memory.NewStore()
		allocator := pin.NewAllocator(store, clock, pin.Options{Source: firstCode}, nil)
		svc := NewMeetingService(store, allocator, authority, resolver, testPublicURL, nil)

		first, err := svc.Create(ctx, CreateMeetingInput{Name: "First", OwnerID: "owner-1"})
		require.NoError(t, err)
		require.Equal(t, "100000000", first.PIN)
		require.NoError(t, svc.Delete(ctx, first.ID, "owner-1"))

		clock.Advance(time.Minute)
		second, err := svc.Create(ctx, CreateMeetingInput{Name: "Second", OwnerID: "owner-1"})
		require.NoError(t, err)
		assert.NotContains(t, []string{first.PIN, first.VoiceBridge}, second.PIN)
		assert.NotContains(t, []string{first.PIN, first.VoiceBridge}, second.VoiceBridge)
	})

	t.Run("删除失败时返回错误且号码仍被占用", func(t *testing.T) {
		store := &failingDeleteStore{Store: memory.NewStore()}
		allocator := pin.NewAllocator(store, clock, pin.Options{Source: firstCode}, nil)
		svc := NewMeetingService(store, allocator, authority, resolver, testPublicURL, nil)

		meeting, err := svc.Create(ctx, CreateMeetingInput{Name: "Room", OwnerID: "owner-1"})
		require.NoError(t, err)

		assert.Error(t, svc.Delete(ctx, meeting.ID, "owner-1"))

		forbidden, err := allocator.ForbiddenSet(ctx, "")
		require.NoError(t, err)
		assert.True(t, forbidden.Contains(meeting.PIN))
		assert.True(t, forbidden.Contains(meeting.VoiceBridge))
	})
}

func TestMeetingService_RegenerateCodes(t *testing.T) {
	ctx := context.Background()
	f := newMeetingFixture(t)
	meeting := f.create(t)
	oldPIN, oldBridge := meeting.PIN, meeting.VoiceBridge

	updated, err := f.service.RegenerateCodes(ctx, meeting.ID, "owner-1")
	require.NoError(t, err)
	assert.NotEqual(t, oldPIN, updated.PIN)
	assert.NotEqual(t, oldBridge, updated.VoiceBridge)

	stored, err := f.store.GetMeetingByCode(ctx, updated.PIN)
	require.NoError(t, err)
	assert.Equal(t, meeting.ID, stored.ID)

	_, err = f.store.GetMeetingByCode(ctx, oldPIN)
	assert.ErrorIs(t, err, storage.ErrMeetingNotFound)

	retired, err := f.store.RetiredCodes(ctx, f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{oldPIN, oldBridge}, retired)

	// 归档的号码在保留期内不会再分配给其他会议
	forbidden, err := pin.NewAllocator(f.store, f.clock, pin.Options{}, nil).ForbiddenSet(ctx, "")
	require.NoError(t, err)
	assert.True(t, forbidden.Contains(oldPIN))
	assert.True(t, forbidden.Contains(updated.PIN))
}

func TestMeetingService_RotateSecrets(t *testing.T) {
	ctx := context.Background()
	f := newMeetingFixture(t)
	meeting := f.create(t)

	oldLink := f.authority.IssueRoleToken(meeting.Secret(), domain.RoleAttendee)
	require.Equal(t, domain.RoleAttendee, f.resolver.Resolve(meeting, oldLink, ""))

	rotated, err := f.service.RotateSecrets(ctx, meeting.ID, "owner-1")
	require.NoError(t, err)
	assert.NotEqual(t, meeting.AttendeeSecret, rotated.AttendeeSecret)
	assert.NotEqual(t, meeting.ModeratorSecret, rotated.ModeratorSecret)
	assert.Equal(t, meeting.PIN, rotated.PIN)

	assert.Equal(t, domain.RoleNone, f.resolver.Resolve(rotated, oldLink, ""))
}

func TestMeetingService_Links(t *testing.T) {
	f := newMeetingFixture(t)
	meeting := f.create(t)

	links := f.service.Links(meeting)
	cases := map[string]struct {
		link string
		role domain.Role
	}{
		"参会者":    {links.Attendee, domain.RoleAttendee},
		"主持人":    {links.Moderator, domain.RoleModerator},
		"已登录参会者": {links.AuthenticatedAttendee, domain.RoleAuthenticatedAttendee},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.True(t, strings.HasPrefix(tc.link, "https://meet.example.com/join/"+meeting.Identifier+"?hash="))
			parsed, err := url.Parse(tc.link)
			require.NoError(t, err)
			assert.Equal(t, tc.role, f.resolver.Resolve(meeting, parsed.Query().Get("hash"), ""))
		})
	}
}
