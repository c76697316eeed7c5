// Package provider implements the two interchangeable delivery backends and
// the per-account selection between them.
package provider

import (
	"context"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// Message is one personalized email. From is the account's configured
// from-address; each provider decides how to present it.
type Message struct {
	To      string
	Subject string
	HTML    string
	From    string
}

// Provider sends a single message. A failed send returns an
// *appErrors.DeliveryFailure.
type Provider interface {
	Kind() model.ProviderKind
	Send(ctx context.Context, msg Message) error
}
