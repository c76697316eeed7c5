package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/provider"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

const (
	errNoEmailAddress  = "No email address provided"
	defaultSendTimeout = 30 * time.Second
)

// ProviderSelector resolves the account's delivery provider.
type ProviderSelector interface {
	Select(ctx context.Context, accountID int) (*provider.Selection, error)
}

// DispatchResult is the aggregate outcome of one dispatch.
type DispatchResult struct {
	Sent    int                    `json:"sent"`
	Failed  int                    `json:"failed"`
	Results []model.DeliveryResult `json:"results"`
}

// Dispatcher sends a campaign to its recipients one at a time, in order,
// and stores one DeliveryResult per recipient.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Providers    ProviderSelector
	Logger       *zap.Logger

	// SendTimeout bounds a single send; providers apply their own
	// connection timeouts inside it.
	SendTimeout time.Duration
	Now         func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Delivery is a dispatch whose provider has been selected but which has not
// sent anything yet.
type Delivery struct {
	d         *Dispatcher
	accountID int
	selection *provider.Selection
}

// Prepare selects the provider for accountID. It is the only step that can
// fail with ErrProviderNotConfigured, so callers run it before any write.
func (d *Dispatcher) Prepare(ctx context.Context, accountID int) (*Delivery, error) {
	sel, err := d.Providers.Select(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Delivery{d: d, accountID: accountID, selection: sel}, nil
}

// Dispatch selects the provider and runs the delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, accountID, campaignID int, subject, template string, recipients []model.Recipient) (*DispatchResult, error) {
	delivery, err := d.Prepare(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return delivery.Run(ctx, campaignID, subject, template, recipients)
}

// Run sends to every recipient and then persists sent_at and the results.
// Individual failures are recorded, never returned. Sends run detached from
// ctx cancellation so a started dispatch always covers the full list.
func (dl *Delivery) Run(ctx context.Context, campaignID int, subject, template string, recipients []model.Recipient) (*DispatchResult, error) {
	d := dl.d
	log := logger.OrNop(d.Logger).With(
		zap.Int("account_id", dl.accountID),
		zap.Int("campaign_id", campaignID),
		zap.String("provider", string(dl.selection.Provider.Kind())),
	)
	log.Info("dispatch started", zap.Int("recipients", len(recipients)))

	out := &DispatchResult{Results: make([]model.DeliveryResult, 0, len(recipients))}
	for _, res := range dl.deliver(context.WithoutCancel(ctx), subject, template, recipients) {
		if res.Success {
			out.Sent++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, res)
	}

	if err := d.CampaignRepo.SaveResults(context.WithoutCancel(ctx), dl.accountID, campaignID, d.now(), out.Results); err != nil {
		return nil, fmt.Errorf("save dispatch results: %w", err)
	}
	log.Info("dispatch finished", zap.Int("sent", out.Sent), zap.Int("failed", out.Failed))
	return out, nil
}

// deliver yields one result per recipient, in recipient order. The next send
// starts only after the consumer has taken the previous result.
func (dl *Delivery) deliver(ctx context.Context, subject, template string, recipients []model.Recipient) iter.Seq2[int, model.DeliveryResult] {
	return func(yield func(int, model.DeliveryResult) bool) {
		for i, r := range recipients {
			if !yield(i, dl.sendOne(ctx, subject, template, r)) {
				return
			}
		}
	}
}

func (dl *Delivery) sendOne(ctx context.Context, subject, template string, r model.Recipient) model.DeliveryResult {
	d := dl.d
	kind := string(dl.selection.Provider.Kind())

	if r.Email == "" {
		metrics.RecordDelivery(kind, false, string(model.FailureNoEmailAddress), 0)
		return failedResult(r.Email, model.FailureNoEmailAddress, errNoEmailAddress, d.now())
	}

	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := dl.selection.Provider.Send(sendCtx, provider.Message{
		To:      r.Email,
		Subject: subject,
		HTML:    RenderTemplate(template, r),
		From:    dl.selection.From,
	})
	took := time.Since(start)

	if err != nil {
		df := appErrors.AsDeliveryFailure(err)
		metrics.RecordDelivery(kind, false, string(df.Kind), took)
		logger.OrNop(d.Logger).Warn("delivery failed",
			logger.Email(r.Email),
			zap.String("kind", string(df.Kind)),
			zap.Error(err))
		return failedResult(r.Email, df.Kind, df.Message, d.now())
	}
	metrics.RecordDelivery(kind, true, "", took)
	return model.DeliveryResult{Email: r.Email, Success: true, Timestamp: d.now()}
}

func failedResult(email string, kind model.FailureKind, msg string, at time.Time) model.DeliveryResult {
	return model.DeliveryResult{
		Email:     email,
		Success:   false,
		Error:     &msg,
		Kind:      kind,
		Timestamp: at,
	}
}
