// Package service defines contracts shared across application packages.
package service

import (
	"context"
	"time"

	"github.com/lockboxhq/lockbox/internal/model"
)

// ContactsSource provides read-only access to the user's known contacts.
// Role extraction uses it to map raw senders onto existing identities
// rather than inventing new ones.
type ContactsSource interface {
	Contacts(ctx context.Context, userID string) ([]model.Contact, error)
}

// RetryOptions configures retry behavior for operations against external
// services.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// StaticContacts adapts a fixed contact list to the ContactsSource interface.
// Callers that already hold the contacts in memory (for example the batch
// entry point, which receives them as an argument) use this instead of a live
// address-book client.
type StaticContacts []model.Contact

// Contacts returns the fixed list for any user.
func (s StaticContacts) Contacts(_ context.Context, _ string) ([]model.Contact, error) {
	return []model.Contact(s), nil
}
