package sqlite

import (
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

type serverModel struct {
	ID                string `gorm:"primaryKey;type:TEXT"`
	Name              string `gorm:"type:TEXT NOT NULL"`
	Address           string `gorm:"type:TEXT NOT NULL"`
	Port              int    `gorm:"type:INTEGER NOT NULL"`
	VoteCount         int64  `gorm:"type:INTEGER NOT NULL;default:0;index:idx_servers_ranking,priority:1,sort:desc"`
	VotifierHost      *string
	VotifierPort      *int
	VotifierPublicKey *string
	CreatedAt         time.Time `gorm:"index:idx_servers_ranking,priority:2,sort:desc"`
	UpdatedAt         time.Time
}

func (serverModel) TableName() string { return "servers" }

// voteModel keeps voted_at as unix microseconds so ordering never depends on
// the driver's text encoding of timestamps.
type voteModel struct {
	ID            string `gorm:"primaryKey;type:TEXT"`
	ServerID      string `gorm:"type:TEXT NOT NULL;index:idx_votes_pair,priority:1"`
	VoterIdentity string `gorm:"type:TEXT NOT NULL;index:idx_votes_pair,priority:2"`
	DisplayName   string `gorm:"type:TEXT NOT NULL;default:''"`
	VotedAt       int64  `gorm:"type:INTEGER NOT NULL;index:idx_votes_pair,priority:3,sort:desc"`
}

func (voteModel) TableName() string { return "votes" }

func toServerModel(t *domain.Target) serverModel {
	m := serverModel{
		ID:        t.ID,
		Name:      t.Name,
		Address:   t.Address,
		Port:      t.Port,
		VoteCount: t.VoteCount,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
	if e := t.Notification; e != nil {
		host, port, key := e.Host, e.Port, e.PublicKey
		m.VotifierHost, m.VotifierPort, m.VotifierPublicKey = &host, &port, &key
	}
	return m
}

func (m serverModel) toDomain() *domain.Target {
	t := &domain.Target{
		ID:        m.ID,
		Name:      m.Name,
		Address:   m.Address,
		Port:      m.Port,
		VoteCount: m.VoteCount,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.VotifierHost != nil && m.VotifierPort != nil && m.VotifierPublicKey != nil {
		t.Notification = &domain.NotificationEndpoint{
			Host:      *m.VotifierHost,
			Port:      *m.VotifierPort,
			PublicKey: *m.VotifierPublicKey,
		}
	}
	return t
}

func toVoteModel(v *domain.Vote) voteModel {
	return voteModel{
		ID:            v.ID.String(),
		ServerID:      v.TargetID,
		VoterIdentity: v.VoterIdentity,
		DisplayName:   v.DisplayName,
		VotedAt:       v.VotedAt.UnixMicro(),
	}
}

func (m voteModel) toDomain() (*domain.Vote, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Vote{
		ID:            id,
		TargetID:      m.ServerID,
		VoterIdentity: m.VoterIdentity,
		DisplayName:   m.DisplayName,
		VotedAt:       time.UnixMicro(m.VotedAt).UTC(),
	}, nil
}
