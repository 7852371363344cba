package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
	"github.com/vncsmyrnk/servervote/internal/core/services"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingVotes struct{ err error }

func (f failingVotes) RecordVote(context.Context, ports.VoteInput) (*domain.VoteResult, error) {
	return nil, f.err
}

type testServer struct {
	handler http.Handler
	clock   *steppingClock
	store   *memory.Store
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()

	log, _ := test.NewNullLogger()
	clock := &steppingClock{now: t0}
	store := memory.NewStore()

	checker := services.NewEligibilityService(store, store, domain.CooldownWindow)
	voteService := services.NewVoteService(checker, store, nil, services.VoteServiceConfig{}, log)
	targetService := services.NewTargetService(store, nil, clock)

	handler := NewHandler(
		NewTargetHandler(targetService, log),
		NewVoteHandler(voteService, checker, clock, log),
		cfg,
	)
	return &testServer{handler: handler, clock: clock, store: store}
}

func (s *testServer) do(t *testing.T, method, path, remoteAddr, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createTarget(t *testing.T) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/servers", "10.0.0.1:5000", `{"name":"Skyblock","address":"play.example.org"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp targetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.DefaultGamePort, resp.Port)
	assert.False(t, resp.VotifierEnabled)
	return resp.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_VoteFlow(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	id := srv.createTarget(t)
	votePath := "/api/servers/" + id + "/vote"

	rec := srv.do(t, http.MethodPost, votePath, "1.2.3.4:5555", `{"username":"Alice"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[voteResponse](t, rec)
	assert.True(t, accepted.Accepted)
	assert.EqualValues(t, 1, accepted.VoteCount)
	assert.True(t, t0.Add(24*time.Hour).Equal(accepted.NextVoteAt))

	srv.clock.Advance(time.Hour)

	rec = srv.do(t, http.MethodPost, votePath, "1.2.3.4:6666", `{"username":"Bob"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "82800", rec.Header().Get("Retry-After"))
	rejected := decode[voteResponse](t, rec)
	assert.False(t, rejected.Accepted)
	assert.True(t, rejected.Cooldown)
	assert.EqualValues(t, 82800, rejected.RetryAfterSeconds)

	rec = srv.do(t, http.MethodGet, "/api/servers/"+id+"/can-vote", "1.2.3.4:7777", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canVote := decode[canVoteResponse](t, rec)
	assert.False(t, canVote.CanVote)
	assert.EqualValues(t, 82800, canVote.RetryAfterSeconds)
	require.NotNil(t, canVote.LastVoteAt)
	assert.True(t, t0.Equal(*canVote.LastVoteAt))

	rec = srv.do(t, http.MethodPost, votePath, "[::ffff:5.6.7.8]:1000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode[voteResponse](t, rec).VoteCount)

	last, err := srv.store.LastVote(context.Background(), id, "5.6.7.8")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, anonymousUsername, last.DisplayName)

	srv.clock.Advance(23 * time.Hour)

	rec = srv.do(t, http.MethodGet, "/api/servers/"+id+"/can-vote", "1.2.3.4:7777", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[canVoteResponse](t, rec).CanVote)

	rec = srv.do(t, http.MethodPost, votePath, "1.2.3.4:5555", `{"username":"Alice"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[voteResponse](t, rec).VoteCount)

	rec = srv.do(t, http.MethodGet, "/api/servers/"+id, "1.2.3.4:5555", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[targetResponse](t, rec).VoteCount)
}

func TestRouter_VoteErrors(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	id := srv.createTarget(t)

	tests := []struct {
		name       string
		path       string
		remoteAddr string
		body       string
		wantStatus int
	}{
		{"unknown server", "/api/servers/server_missing/vote", "1.2.3.4:1", "", http.StatusNotFound},
		{"bad body", "/api/servers/" + id + "/vote", "1.2.3.4:1", "{", http.StatusBadRequest},
		{"long username", "/api/servers/" + id + "/vote", "1.2.3.4:1", `{"username":"` + strings.Repeat("x", 33) + `"}`, http.StatusBadRequest},
		{"no client address", "/api/servers/" + id + "/vote", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, tt.path, tt.remoteAddr, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}

	count, err := srv.store.CountVotes(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRouter_RecordingFailureIsRetryable(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := memory.NewStore()
	clock := &steppingClock{now: t0}
	checker := services.NewEligibilityService(store, store, domain.CooldownWindow)

	handler := NewHandler(
		NewTargetHandler(services.NewTargetService(store, nil, clock), log),
		NewVoteHandler(failingVotes{err: fmt.Errorf("%w: timeout", domain.ErrRecordingFailed)}, checker, clock, log),
		RouterConfig{},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/servers/server_x/vote", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRouter_TrustProxy(t *testing.T) {
	srv := newTestServer(t, RouterConfig{TrustProxy: true})
	id := srv.createTarget(t)
	votePath := "/api/servers/" + id + "/vote"
	forwarded := http.Header{"X-Forwarded-For": []string{"203.0.113.7, 10.0.0.1"}}

	rec := srv.do(t, http.MethodPost, votePath, "10.0.0.1:1000", "", forwarded)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, votePath, "10.0.0.2:2000", "", forwarded)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	last, err := srv.store.LastVote(context.Background(), id, "203.0.113.7")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestRouter_IgnoresForwardedHeadersByDefault(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	id := srv.createTarget(t)
	votePath := "/api/servers/" + id + "/vote"
	forwarded := http.Header{"X-Forwarded-For": []string{"203.0.113.7"}}

	rec := srv.do(t, http.MethodPost, votePath, "10.0.0.1:1000", "", forwarded)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, votePath, "10.0.0.2:1000", "", forwarded)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[voteResponse](t, rec).VoteCount)
}

func TestRouter_Targets(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})
	first := srv.createTarget(t)
	second := srv.createTarget(t)

	rec := srv.do(t, http.MethodPost, "/api/servers/"+second+"/vote", "1.2.3.4:1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/servers", "1.2.3.4:1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]targetResponse](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	rec = srv.do(t, http.MethodGet, "/api/servers?page=2", "1.2.3.4:1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]targetResponse](t, rec))

	rec = srv.do(t, http.MethodGet, "/api/servers?page=zero", "1.2.3.4:1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/servers/server_missing", "1.2.3.4:1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/servers", "1.2.3.4:1", `{"name":"","address":"play.example.org"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/servers", "1.2.3.4:1", `{"name":"x","address":"play.example.org","votifier":{"host":"play.example.org"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ThrottlesVoteRoutes(t *testing.T) {
	srv := newTestServer(t, RouterConfig{RateLimit: RateLimitConfig{RPS: 0.001, Burst: 2}})
	id := srv.createTarget(t)
	path := "/api/servers/" + id + "/can-vote"

	for i := 0; i < 2; i++ {
		rec := srv.do(t, http.MethodGet, path, "1.2.3.4:1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(t, http.MethodGet, path, "1.2.3.4:1", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests", decode[errorResponse](t, rec).Error)

	rec = srv.do(t, http.MethodGet, path, "5.6.7.8:1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/servers/"+id, "1.2.3.4:1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
