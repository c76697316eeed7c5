// internal/model/delivery_result.go
package model

import "time"

// FailureKind classifies why a single delivery failed.
type FailureKind string

const (
	FailureAuthentication     FailureKind = "authentication"
	FailureConnectionRefused  FailureKind = "connection-refused"
	FailureTimeout            FailureKind = "timeout"
	FailureEncryptionMismatch FailureKind = "encryption-mismatch"
	FailureProviderRejected   FailureKind = "provider-rejected"
	FailureNoEmailAddress     FailureKind = "no-email-address"
)

type DeliveryResult struct {
	Email     string      `json:"email"`
	Success   bool        `json:"success"`
	Error     *string     `json:"error"`
	Kind      FailureKind `json:"kind,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Status is the export label of the result.
func (r DeliveryResult) Status() string {
	if r.Success {
		return "Sent"
	}
	return "Failed"
}
