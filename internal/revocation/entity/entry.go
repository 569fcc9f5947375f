package entity

import "time"

// Entry records that a session token identifier is permanently revoked.
type Entry struct {
	ID        int64     `db:"id"`
	JTI       string    `db:"jti"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
