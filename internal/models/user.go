package models

import "time"

// PresenceWindow is how long after the last heartbeat a user still counts as
// online. The client heartbeats every 20s, so the window tolerates one missed
// beat.
const PresenceWindow = 40 * time.Second

// User is a directory entry synced from the identity provider.
type User struct {
	ID           int64     `db:"id" json:"id"`
	ExternalID   string    `db:"external_id" json:"external_id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	AvatarURL    string    `db:"avatar_url" json:"avatar_url"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
}

// OnlineAt reports whether the user counts as online at the given instant.
func (u User) OnlineAt(now time.Time) bool {
	return now.Sub(u.LastActiveAt) < PresenceWindow
}
