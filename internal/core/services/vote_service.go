package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

const maxDisplayNameLength = 32

type VoteServiceConfig struct {
	Window         time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c VoteServiceConfig) withDefaults() VoteServiceConfig {
	if c.Window <= 0 {
		c.Window = domain.CooldownWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 25 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 250 * time.Millisecond
	}
	return c
}

type voteService struct {
	checker    ports.EligibilityChecker
	votes      ports.VoteRepository
	dispatcher ports.NotificationDispatcher
	cfg        VoteServiceConfig
	log        logrus.FieldLogger
}

func NewVoteService(checker ports.EligibilityChecker, votes ports.VoteRepository, dispatcher ports.NotificationDispatcher, cfg VoteServiceConfig, log logrus.FieldLogger) ports.VoteService {
	return &voteService{
		checker:    checker,
		votes:      votes,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		log:        log,
	}
}

func (s *voteService) RecordVote(ctx context.Context, input ports.VoteInput) (*domain.VoteResult, error) {
	identity, err := domain.NormalizeIdentity(input.VoterIdentity)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if !validDisplayName(displayName) {
		return nil, domain.ErrInvalidUsername
	}

	eligibility, err := s.checker.CheckEligibility(ctx, input.TargetID, identity, input.Now)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return cooldownResult(eligibility, input.Now), nil
	}

	vote := &domain.Vote{
		ID:            uuid.New(),
		TargetID:      input.TargetID,
		VoterIdentity: identity,
		DisplayName:   displayName,
		VotedAt:       input.Now,
	}

	outcome, err := s.recordWithRetry(ctx, vote)
	if err != nil {
		return nil, err
	}

	// Another request for the same pair won the race between the check above
	// and the atomic write.
	if !outcome.Accepted {
		return cooldownResult(outcome.Eligibility, input.Now), nil
	}

	target := outcome.Target
	if s.dispatcher != nil && target.AcceptsNotifications() {
		s.dispatcher.Dispatch(domain.Notification{
			TargetID:      target.ID,
			Endpoint:      *target.Notification,
			DisplayName:   displayName,
			VoterIdentity: identity,
			VotedAt:       vote.VotedAt,
		})
	}

	return &domain.VoteResult{
		Accepted:   true,
		VoteCount:  target.VoteCount,
		NextVoteAt: input.Now.Add(s.cfg.Window),
	}, nil
}

func (s *voteService) recordWithRetry(ctx context.Context, vote *domain.Vote) (*domain.RecordOutcome, error) {
	var outcome *domain.RecordOutcome
	attempt := 0

	operation := func() error {
		attempt++
		o, err := s.votes.RecordVote(ctx, vote, s.cfg.Window)
		if err == nil {
			outcome = o
			return nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}

		s.log.WithFields(logrus.Fields{
			"target_id": vote.TargetID,
			"attempt":   attempt,
		}).WithError(err).Warn("vote recording attempt failed")
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.InitialBackoff
	policy.MaxInterval = s.cfg.MaxBackoff
	retries := backoff.WithMaxRetries(policy, uint64(s.cfg.MaxAttempts-1))

	err := backoff.Retry(operation, backoff.WithContext(retries, ctx))
	if err == nil {
		return outcome, nil
	}
	if errors.Is(err, domain.ErrTargetNotFound) {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"target_id": vote.TargetID,
		"attempts":  attempt,
	}).WithError(err).Error("giving up on vote recording")
	return nil, fmt.Errorf("%w: %v", domain.ErrRecordingFailed, err)
}

// validDisplayName accepts names shown to game servers: at most
// maxDisplayNameLength runes and no control characters.
func validDisplayName(name string) bool {
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return false
	}
	return strings.IndexFunc(name, unicode.IsControl) < 0
}

func cooldownResult(e domain.Eligibility, now time.Time) *domain.VoteResult {
	return &domain.VoteResult{
		Accepted:   false,
		RetryAfter: e.RetryAfter,
		NextVoteAt: e.NextVoteAt(now),
	}
}
