package event

import (
	"encoding/json"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// Kind is the closed set of security event types.
type Kind string

const (
	KindUserLogin           Kind = "USER_LOGIN"
	KindUserPasswordChanged Kind = "USER_PWD_CHANGED"
	KindUserLogout          Kind = "USER_LOGOUT"
)

// Payload identifies the account an event is about.
type Payload struct {
	UserID int64     `json:"user_id"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
}

// Event is an immutable fact about something that happened to a session.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Data      Payload
}

// New stamps an event of kind about the given account with the current UTC time.
func New(kind Kind, userID int64, email string, role auth.Role) Event {
	return Event{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data:      Payload{UserID: userID, Email: email, Role: role},
	}
}

// Envelope is the wire form of an Event on the queue.
type Envelope struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Data      Payload `json:"data"`
}

// Envelope converts the event to its wire form.
func (e Event) Envelope() Envelope {
	return Envelope{
		Type:      string(e.Kind),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Data:      e.Data,
	}
}

// Marshal encodes the event envelope as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e.Envelope())
}
