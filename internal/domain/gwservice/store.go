package gwservice

import (
	"context"
	"time"
)

// OverrideStore persists ServiceOverride rows, written by the admin plane
// and read at startup and on every admin mutation.
type OverrideStore interface {
	SaveOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, service string) error
	GetOverride(ctx context.Context, service string) (Override, bool, error)
	AllOverrides(ctx context.Context) ([]Override, error)
}

// OverrideNow stamps CreatedAt/UpdatedAt for a fresh or updated Override.
func OverrideNow(existing *Override, d Definition, now time.Time) Override {
	if existing != nil {
		return Override{ServiceName: d.Name, Definition: d, CreatedAt: existing.CreatedAt, UpdatedAt: now}
	}
	return Override{ServiceName: d.Name, Definition: d, CreatedAt: now, UpdatedAt: now}
}
