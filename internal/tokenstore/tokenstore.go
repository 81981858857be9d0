// Package tokenstore holds session tokens in an explicit process-wide
// store with TTL eviction, injected into request handling instead of
// living in ambient module state. Entries expire independently; RevokeAll
// clears the whole store at once.
package tokenstore

import (
	"context"
	"time"
)

// Store maps session tokens to user IDs with a per-entry TTL.
type Store interface {
	// Set registers a token for a user.
	Set(ctx context.Context, token string, userID int64) error

	// Get resolves a token. The boolean is false for unknown or expired
	// tokens.
	Get(ctx context.Context, token string) (int64, bool, error)

	// Revoke drops one token.
	Revoke(ctx context.Context, token string) error

	// RevokeAll drops every token, the administrative kill switch.
	RevokeAll(ctx context.Context) error

	Close() error
}

// DefaultTTL is used when a store is constructed with a zero TTL.
const DefaultTTL = 12 * time.Hour
