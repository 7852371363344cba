package domain

import "time"

const DefaultGamePort = 25565

// Target is a listed game server that can receive votes.
type Target struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Address      string                `json:"address"`
	Port         int                   `json:"port"`
	VoteCount    int64                 `json:"vote_count"`
	Notification *NotificationEndpoint `json:"-"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// NotificationEndpoint is where a game server listens for vote notifications.
// PublicKey is the base64 encoded X.509 RSA key the server published.
type NotificationEndpoint struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PublicKey string `json:"-"`
}

func (t *Target) AcceptsNotifications() bool {
	return t.Notification != nil && t.Notification.Host != "" && t.Notification.Port > 0 && t.Notification.PublicKey != ""
}
