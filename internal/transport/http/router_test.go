package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/breaker"
	"roomgate/backend/internal/cache"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/depgate"
	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/health"
	"roomgate/backend/internal/join"
	"roomgate/backend/internal/middleware"
	"roomgate/backend/internal/monitoring"
	"roomgate/backend/internal/pin"
	"roomgate/backend/internal/service"
	"roomgate/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router      *gin.Engine
	clock       *clockwork.FakeClock
	token       string
	otherToken  string
	invitations *service.InvitationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{PublicURL: "https://meet.example.com"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		JWT: config.JWTConfig{
			Secret:       "principal-secret-0123456789abcdefghij",
			Issuer:       "roomgate",
			AccessExpiry: time.Hour,
		},
		Join: config.JoinConfig{AttemptThreshold: 3, AttemptTTL: 24 * time.Hour},
	}

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	kv := cache.NewLocalCache(0, time.Hour, clock)

	authority, err := auth.NewAuthority("installation-secret-0123456789abcdef", clock)
	require.NoError(t, err)
	resolver := auth.NewResolver(authority, false)
	deps := depgate.New(
		breaker.New("endpoint", kv, 5*time.Minute, clock, nil),
		breaker.New("principal", kv, 30*time.Minute, clock, nil),
		time.Second, nil,
	)
	joinGate := join.NewGate(store, join.NewAttemptCounter(kv, cfg.Join.AttemptTTL), deps, nil,
		join.Config{AttemptThreshold: 3}, nil)

	tokens := auth.NewPrincipalTokens(&cfg.JWT, nil)
	owner, err := tokens.Issue(auth.Principal{ID: "owner-1"})
	require.NoError(t, err)
	other, err := tokens.Issue(auth.Principal{ID: "owner-2"})
	require.NoError(t, err)

	invitations := service.NewInvitationService(authority, nil, cfg.Server.PublicURL, time.Hour, nil)
	router := NewRouter(RouterDependencies{
		Config:             cfg,
		MeetingService:     service.NewMeetingService(store, pin.NewAllocator(store, clock, pin.Options{}, nil), authority, resolver, cfg.Server.PublicURL, nil),
		AccessService:      service.NewAccessService(store, resolver, authority, joinGate, nil),
		IntegrationService: service.NewIntegrationService(deps, nil, nil, "", nil, nil),
		InvitationService:  invitations,
		PrincipalTokens:    tokens,
		Metrics:            monitoring.NewMetrics(nil),
		Health:             health.NewHealthChecker(map[string]health.Pinger{"storage": store}, nil),
	})

	return &testServer{
		router:      router,
		clock:       clock,
		token:       owner.AccessToken,
		otherToken:  other.AccessToken,
		invitations: invitations,
	}
}

func (s *testServer) do(t *testing.T, method, target, token string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, target, &payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type createdMeeting struct {
	Data struct {
		Meeting struct {
			ID         string `json:"id"`
			Identifier string `json:"identifier"`
			PIN        string `json:"pin"`
		} `json:"meeting"`
		Links service.Links `json:"links"`
	} `json:"data"`
}

func (s *testServer) createMeeting(t *testing.T) createdMeeting {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/meetings", s.token, gin.H{"name": "Weekly sync"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created createdMeeting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func pathOf(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.RequestURI()
}

func TestRouter_MeetingLifecycle(t *testing.T) {
	s := newTestServer(t)

	t.Run("未登录不能创建会议", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/meetings", "", gin.H{"name": "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	created := s.createMeeting(t)
	assert.Len(t, created.Data.Meeting.PIN, 9)
	assert.NotContains(t, created.Data.Links.Attendee, "attendeeSecret")
	assert.Empty(t, created.Data.Links.AuthenticatedAttendee)

	t.Run("非所有者看不到会议", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/meetings/"+created.Data.Meeting.ID, s.otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("轮换密钥后旧链接失效", func(t *testing.T) {
		oldLink := pathOf(t, created.Data.Links.Attendee)
		require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, oldLink, "", nil).Code)

		rec := s.do(t, http.MethodPost, "/api/v1/meetings/"+created.Data.Meeting.ID+"/secrets", s.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, oldLink, "", nil).Code)
	})

	t.Run("删除会议", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/v1/meetings/"+created.Data.Meeting.ID, s.otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = s.do(t, http.MethodDelete, "/api/v1/meetings/"+created.Data.Meeting.ID, s.token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRouter_JoinByHash(t *testing.T) {
	s := newTestServer(t)
	created := s.createMeeting(t)

	rec := s.do(t, http.MethodGet, pathOf(t, created.Data.Links.Moderator), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"moderator"`)

	rec = s.do(t, http.MethodGet, "/join/"+created.Data.Meeting.Identifier, s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"moderator"`)

	unknown := s.do(t, http.MethodGet, "/join/no-such-meeting?hash=abc", "", nil)
	badHash := s.do(t, http.MethodGet, "/join/"+created.Data.Meeting.Identifier+"?hash=abc", "", nil)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, badHash.Code)
	assert.Equal(t, unknown.Body.String(), badHash.Body.String())
	assert.Contains(t, badHash.Body.String(), `"reason":"UNAUTHORIZED"`)
}

func TestRouter_JoinByMail(t *testing.T) {
	s := newTestServer(t)
	created := s.createMeeting(t)

	link := s.invitations.MailLinkURL(&domain.Meeting{Identifier: created.Data.Meeting.Identifier})
	rec := s.do(t, http.MethodGet, pathOf(t, link), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"attendee"`)

	s.clock.Advance(2 * time.Hour)
	rec = s.do(t, http.MethodGet, pathOf(t, link), "", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"EXPIRED"`)

	rec = s.do(t, http.MethodGet, "/join/"+created.Data.Meeting.Identifier+"/mail?expires=abc&hash=x", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_JoinByCode(t *testing.T) {
	s := newTestServer(t)
	created := s.createMeeting(t)

	rec := s.do(t, http.MethodPost, "/join/code", "", gin.H{"code": "000000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"captchaRequired":false`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].Secure)

	rec = s.do(t, http.MethodPost, "/join/code", "", gin.H{"code": created.Data.Meeting.PIN}, cookies[0])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"moderator"`)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRouter_Integrations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/integrations/filestorage", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)

	rec = s.do(t, http.MethodGet, "/api/v1/integrations/identity/alice", s.token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgFeatureDisabled)
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "roomgate_http_requests_total")
}
