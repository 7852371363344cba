package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

const anonymousUsername = "Anonymous"

type VoteHandler struct {
	service ports.VoteService
	checker ports.EligibilityChecker
	clock   ports.Clock
	log     logrus.FieldLogger
}

func NewVoteHandler(service ports.VoteService, checker ports.EligibilityChecker, clock ports.Clock, log logrus.FieldLogger) *VoteHandler {
	return &VoteHandler{
		service: service,
		checker: checker,
		clock:   clock,
		log:     log,
	}
}

type voteRequest struct {
	Username string `json:"username"`
}

type voteResponse struct {
	Accepted          bool      `json:"accepted"`
	VoteCount         int64     `json:"vote_count,omitempty"`
	Cooldown          bool      `json:"cooldown,omitempty"`
	RetryAfterSeconds int64     `json:"retry_after_seconds,omitempty"`
	NextVoteAt        time.Time `json:"next_vote_at"`
}

type canVoteResponse struct {
	CanVote           bool       `json:"can_vote"`
	RetryAfterSeconds int64      `json:"retry_after_seconds"`
	NextVoteAt        time.Time  `json:"next_vote_at"`
	LastVoteAt        *time.Time `json:"last_vote_at"`
}

func (h *VoteHandler) CanVote(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()

	eligibility, err := h.checker.CheckEligibility(r.Context(), chi.URLParam(r, "id"), clientIdentity(r), now)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, canVoteResponse{
		CanVote:           eligibility.Eligible,
		RetryAfterSeconds: retryAfterSeconds(eligibility.RetryAfter),
		NextVoteAt:        eligibility.NextVoteAt(now),
		LastVoteAt:        eligibility.LastVoteAt,
	})
}

func (h *VoteHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = anonymousUsername
	}

	result, err := h.service.RecordVote(r.Context(), ports.VoteInput{
		TargetID:      chi.URLParam(r, "id"),
		VoterIdentity: clientIdentity(r),
		DisplayName:   username,
		Now:           h.clock.Now(),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if !result.Accepted {
		setRetryAfter(w, result.RetryAfter)
		writeJSON(w, http.StatusTooManyRequests, voteResponse{
			Accepted:          false,
			Cooldown:          true,
			RetryAfterSeconds: retryAfterSeconds(result.RetryAfter),
			NextVoteAt:        result.NextVoteAt,
		})
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{
		Accepted:   true,
		VoteCount:  result.VoteCount,
		NextVoteAt: result.NextVoteAt,
	})
}
