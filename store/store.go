// Package store holds the client-side state of the messaging client: the
// session, the user roster, the conversation list and the messages of the
// active conversation. Stores mediate between consumers and the REST API.
//
// Each store guards its state with a mutex that is never held across a
// network call, so overlapping operations interleave only at request
// boundaries. Stores that track isLoading and error share those fields across
// all of their operations; concurrent calls race on them and the last one to
// finish wins.
package store

import (
	"context"
	"errors"
	"fmt"
)

// A KV is one persistence tier. Deleting a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Tier selects where session data is persisted.
type Tier int

const (
	// TierEphemeral lives as long as the client process.
	TierEphemeral Tier = iota
	// TierDurable survives restarts.
	TierDurable
)

func (t Tier) String() string {
	if t == TierDurable {
		return "local"
	}
	return "session"
}

// ParseTier is the inverse of Tier.String. Anything but "local" selects the
// ephemeral tier.
func ParseTier(s string) Tier {
	if s == "local" {
		return TierDurable
	}
	return TierEphemeral
}

// Tiers groups the two persistence tiers.
type Tiers struct {
	Durable   KV
	Ephemeral KV
}

func (t Tiers) kv(tier Tier) KV {
	if tier == TierDurable {
		return t.Durable
	}
	return t.Ephemeral
}

func (t Tiers) other(tier Tier) KV {
	if tier == TierDurable {
		return t.Ephemeral
	}
	return t.Durable
}

func (t Tiers) deleteAll(ctx context.Context, key string) error {
	var errs []error
	if err := t.Durable.Delete(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("delete %s from local: %w", key, err))
	}
	if err := t.Ephemeral.Delete(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("delete %s from session: %w", key, err))
	}
	return errors.Join(errs...)
}

// Persisted keys.
const (
	keyToken    = "user_token"
	keyUser     = "user_data"
	keyTier     = "auth_storage_type"
	keyRedirect = "redirect_after_login"
)

// LoginPath is where consumers are sent when the session expires.
const LoginPath = "/login"

// A Navigator exposes the consumer's current location and moves it elsewhere.
type Navigator interface {
	CurrentPath() string
	Redirect(path string)
}

// errMessage is the human-readable text recorded in a store's error field.
func errMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
