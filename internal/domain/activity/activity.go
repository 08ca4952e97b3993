package activity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// ActiveNowWindow is how recent a touch must be to count as "active now".
	ActiveNowWindow = 2 * time.Minute
	// RecentWindow bounds the "Nm ago" bucket; anything older is shown as offline.
	RecentWindow = 60 * time.Minute
)

var ErrUserRequired = errors.New("activity: user id is required")

// Label renders a last-active timestamp relative to now.
func Label(lastActive, now time.Time) string {
	if lastActive.IsZero() {
		return "offline"
	}
	age := now.Sub(lastActive)
	if age < 0 {
		age = 0
	}
	switch {
	case age < ActiveNowWindow:
		return "active now"
	case age < RecentWindow:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	default:
		return "offline"
	}
}

// Store persists per-user last-active timestamps.
type Store interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	// LastActive returns the zero time for users that never touched.
	LastActive(ctx context.Context, userID string) (time.Time, error)
}
