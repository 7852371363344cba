package services

import (
	"context"
	"sync"
	"time"

	"github.com/vncsmyrnk/servervote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// flakyVotes fails the first failures RecordVote calls with err.
type flakyVotes struct {
	ports.VoteRepository

	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakyVotes) RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return nil, f.err
	}
	return f.VoteRepository.RecordVote(ctx, vote, window)
}

type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (d *recordingDispatcher) Dispatch(n domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
}

func (d *recordingDispatcher) sent() []domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Notification(nil), d.notifications...)
}

type fakeNotifier struct {
	notify   func(ctx context.Context, n domain.Notification) error
	validate func(endpoint domain.NotificationEndpoint) error
}

func (f *fakeNotifier) Notify(ctx context.Context, n domain.Notification) error {
	if f.notify == nil {
		return nil
	}
	return f.notify(ctx, n)
}

func (f *fakeNotifier) ValidateEndpoint(endpoint domain.NotificationEndpoint) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(endpoint)
}

func seedTarget(store *memory.Store, id string, endpoint *domain.NotificationEndpoint) *domain.Target {
	target := &domain.Target{
		ID:           id,
		Name:         id,
		Address:      "play.example.org",
		Port:         domain.DefaultGamePort,
		Notification: endpoint,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	if err := store.Save(context.Background(), target); err != nil {
		panic(err)
	}
	return target
}
