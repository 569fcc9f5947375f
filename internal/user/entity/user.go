package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// User represents a credential row in the `users` table.
type User struct {
	ID           int64      `db:"id"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password"`
	Role         auth.Role  `db:"role"`
	CreatedAt    time.Time  `db:"created_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

// View is the sanitized projection returned to clients; it never carries the password hash.
type View struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// View projects the user into its client-safe form.
func (u *User) View() View {
	return View{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
