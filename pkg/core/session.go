// pkg/core/session.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// User is the registered driver record kept by the identity store.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session is one mounted driving session.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	User      User          `json:"user"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Duration  time.Duration `json:"duration"`
}
