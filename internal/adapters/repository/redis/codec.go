package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

func encodeTarget(t *domain.Target) map[string]any {
	fields := map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"address":    t.Address,
		"port":       t.Port,
		"vote_count": t.VoteCount,
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e := t.Notification; e != nil {
		fields["votifier_host"] = e.Host
		fields["votifier_port"] = e.Port
		fields["votifier_public_key"] = e.PublicKey
	}
	return fields
}

func decodeTarget(fields map[string]string) (*domain.Target, error) {
	if len(fields) == 0 {
		return nil, domain.ErrTargetNotFound
	}

	port, err := strconv.Atoi(fields["port"])
	if err != nil {
		return nil, fmt.Errorf("failed to decode port: %w", err)
	}
	voteCount, err := strconv.ParseInt(fields["vote_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vote count: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to decode created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to decode updated_at: %w", err)
	}

	target := &domain.Target{
		ID:        fields["id"],
		Name:      fields["name"],
		Address:   fields["address"],
		Port:      port,
		VoteCount: voteCount,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	if host, ok := fields["votifier_host"]; ok {
		votifierPort, err := strconv.Atoi(fields["votifier_port"])
		if err != nil {
			return nil, fmt.Errorf("failed to decode votifier port: %w", err)
		}
		target.Notification = &domain.NotificationEndpoint{
			Host:      host,
			Port:      votifierPort,
			PublicKey: fields["votifier_public_key"],
		}
	}
	return target, nil
}

// storedVote is the JSON layout of ledger entries. Timestamps are unix
// microseconds.
type storedVote struct {
	ID            string `json:"id"`
	TargetID      string `json:"server_id"`
	VoterIdentity string `json:"voter_identity"`
	DisplayName   string `json:"display_name"`
	VotedAt       int64  `json:"voted_at"`
}

func encodeVote(v *domain.Vote) ([]byte, error) {
	return json.Marshal(storedVote{
		ID:            v.ID.String(),
		TargetID:      v.TargetID,
		VoterIdentity: v.VoterIdentity,
		DisplayName:   v.DisplayName,
		VotedAt:       v.VotedAt.UnixMicro(),
	})
}

func decodeVote(raw string) (*domain.Vote, error) {
	var sv storedVote
	if err := json.Unmarshal([]byte(raw), &sv); err != nil {
		return nil, fmt.Errorf("failed to decode vote: %w", err)
	}
	id, err := uuid.Parse(sv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vote id: %w", err)
	}
	return &domain.Vote{
		ID:            id,
		TargetID:      sv.TargetID,
		VoterIdentity: sv.VoterIdentity,
		DisplayName:   sv.DisplayName,
		VotedAt:       time.UnixMicro(sv.VotedAt).UTC(),
	}, nil
}
