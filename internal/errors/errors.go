// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

var (
	ErrNoValidRecipients     = errors.New("no valid email addresses found in recipient source")
	ErrProviderNotConfigured = errors.New("SMTP provider selected but no SMTP configuration saved")
	ErrCampaignAlreadySent   = errors.New("campaign not found or already sent")
	ErrDispatchInProgress    = errors.New("a dispatch for this campaign is already running")
	ErrConcurrentUpdate      = errors.New("campaign was modified by another request")
	ErrSMTPConfigNotFound    = errors.New("SMTP configuration not found")
	ErrDatasetNotFound       = errors.New("saved dataset not found")
	ErrInvalidInput          = errors.New("invalid input")
)

// ErrCampaignNotFound is returned when a campaign does not exist or belongs
// to another account.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// DeliveryFailure is the outcome of one failed send. It never aborts a
// dispatch; it ends up in the recipient's DeliveryResult.
type DeliveryFailure struct {
	Kind    model.FailureKind
	Message string
	Err     error
}

func (e *DeliveryFailure) Error() string {
	return e.Message
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

func NewDeliveryFailure(kind model.FailureKind, err error) *DeliveryFailure {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &DeliveryFailure{Kind: kind, Message: msg, Err: err}
}

// AsDeliveryFailure converts any send error into a DeliveryFailure, treating
// unclassified errors as provider rejections.
func AsDeliveryFailure(err error) *DeliveryFailure {
	var df *DeliveryFailure
	if errors.As(err, &df) {
		return df
	}
	return NewDeliveryFailure(model.FailureProviderRejected, err)
}
