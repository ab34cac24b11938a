// Package approver holds the PairedApprover entity created by the
// Notifier's pairing handshake.
package approver

import (
	"context"
	"time"
)

// Paired is an external chat identity authorized to decide
// PendingApprovals, created by a pairing handshake and removable by an
// unpair command.
type Paired struct {
	ChatID      string
	DisplayName string
	PairedAt    time.Time
}

// Store persists PairedApprover rows. Implementation owned by an outbound
// adapter; interface lives in the domain per hexagonal convention.
type Store interface {
	Pair(ctx context.Context, chatID, displayName string, pairedAt time.Time) error
	Unpair(ctx context.Context, chatID string) error
	Get(ctx context.Context, chatID string) (Paired, bool, error)
	IsPaired(ctx context.Context, chatID string) (bool, error)
	All(ctx context.Context) ([]Paired, error)
}
