// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/lock"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// ResendQueue accepts asynchronous resend requests.
type ResendQueue interface {
	EnqueueResend(ctx context.Context, job model.ResendJob) error
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	DatasetRepo  repository.DatasetRepositoryInterface
	Dispatcher   *Dispatcher
	Locker       lock.CampaignLocker
	Notifier     queue.Notifier
	Jobs         ResendQueue
	Logger       *zap.Logger
	Now          func() time.Time
}

// CreateCampaignInput carries exactly one recipient source: an upload or a
// saved dataset.
type CreateCampaignInput struct {
	Subject   string
	Template  string
	Upload    *model.Table
	FileName  string
	DatasetID *int
}

// SendResult is returned by create and send.
type SendResult struct {
	Sent     int             `json:"sent"`
	Failed   int             `json:"failed"`
	Campaign *model.Campaign `json:"campaign"`
}

type ResendResult struct {
	Sent        int             `json:"sent"`
	Failed      int             `json:"failed"`
	ResendCount int             `json:"resendCount"`
	Campaign    *model.Campaign `json:"campaign"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) log() *zap.Logger { return logger.OrNop(s.Logger) }

func (s *CampaignService) acquire(ctx context.Context, campaignID int) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	return s.Locker.TryLock(ctx, campaignID)
}

// CreateAndDispatch resolves recipients, stores a new campaign and sends it
// immediately. Nothing is stored when resolution or provider selection fails.
func (s *CampaignService) CreateAndDispatch(ctx context.Context, accountID int, in CreateCampaignInput) (*SendResult, error) {
	defer metrics.TrackDispatch("create")()

	subject := strings.TrimSpace(in.Subject)
	if subject == "" || strings.TrimSpace(in.Template) == "" {
		return nil, fmt.Errorf("%w: subject and template are required", appErrors.ErrInvalidInput)
	}

	res, err := s.resolveSource(ctx, accountID, in)
	if err != nil {
		return nil, err
	}

	delivery, err := s.Dispatcher.Prepare(ctx, accountID)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		AccountID:     accountID,
		Subject:       subject,
		Template:      in.Template,
		Recipients:    res.Recipients,
		VariableNames: res.VariableNames,
		DatasetID:     in.DatasetID,
		FileName:      in.FileName,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.log().Info("campaign created",
		zap.Int("account_id", accountID),
		zap.Int("campaign_id", c.ID),
		zap.Int("recipients", len(c.Recipients)))

	// A failing lock backend fails every other TryLock too, so the new row
	// is still dispatched once instead of being left behind unsent.
	unlock, err := s.acquire(ctx, c.ID)
	switch {
	case errors.Is(err, appErrors.ErrDispatchInProgress):
		return nil, err
	case err != nil:
		s.log().Warn("campaign lock unavailable, dispatching new campaign without it",
			zap.Int("campaign_id", c.ID), zap.Error(err))
		unlock = func() {}
	}
	defer unlock()

	out, err := delivery.Run(ctx, c.ID, c.Subject, c.Template, c.Recipients)
	if err != nil {
		return nil, err
	}
	updated := s.reloadAndNotify(ctx, accountID, c)
	return &SendResult{Sent: out.Sent, Failed: out.Failed, Campaign: updated}, nil
}

func (s *CampaignService) resolveSource(ctx context.Context, accountID int, in CreateCampaignInput) (*Resolution, error) {
	switch {
	case in.DatasetID != nil:
		if s.DatasetRepo == nil {
			return nil, appErrors.ErrDatasetNotFound
		}
		ds, err := s.DatasetRepo.GetByID(ctx, accountID, *in.DatasetID)
		if err != nil {
			return nil, err
		}
		return ResolveDataset(*ds)
	case in.Upload != nil:
		return ResolveUpload(*in.Upload)
	default:
		return nil, fmt.Errorf("%w: an uploaded file or database_id is required", appErrors.ErrInvalidInput)
	}
}

// SendCampaign dispatches a stored campaign that has never been sent.
func (s *CampaignService) SendCampaign(ctx context.Context, accountID, campaignID int) (*SendResult, error) {
	defer metrics.TrackDispatch("send")()

	unlock, err := s.acquire(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.CampaignRepo.GetByID(ctx, accountID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.SentAt != nil {
		return nil, appErrors.ErrCampaignAlreadySent
	}

	out, err := s.Dispatcher.Dispatch(ctx, accountID, c.ID, c.Subject, c.Template, c.Recipients)
	if err != nil {
		return nil, err
	}
	updated := s.reloadAndNotify(ctx, accountID, c)
	return &SendResult{Sent: out.Sent, Failed: out.Failed, Campaign: updated}, nil
}

// ResendCampaign replays the campaign's stored recipients and template.
// resend_count is bumped and the previous outcome cleared before sending.
func (s *CampaignService) ResendCampaign(ctx context.Context, accountID, campaignID int) (*ResendResult, error) {
	defer metrics.TrackDispatch("resend")()

	unlock, err := s.acquire(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.CampaignRepo.GetByID(ctx, accountID, campaignID)
	if err != nil {
		return nil, err
	}

	delivery, err := s.Dispatcher.Prepare(ctx, accountID)
	if err != nil {
		return nil, err
	}

	count, err := s.CampaignRepo.ResetForResend(ctx, accountID, campaignID, c.ResendCount)
	if err != nil {
		return nil, err
	}
	s.log().Info("campaign resend started",
		zap.Int("account_id", accountID),
		zap.Int("campaign_id", campaignID),
		zap.Int("resend_count", count))

	out, err := delivery.Run(ctx, c.ID, c.Subject, c.Template, c.Recipients)
	if err != nil {
		return nil, err
	}
	c.ResendCount = count
	updated := s.reloadAndNotify(ctx, accountID, c)
	return &ResendResult{
		Sent:        out.Sent,
		Failed:      out.Failed,
		ResendCount: count,
		Campaign:    updated,
	}, nil
}

// EnqueueResend checks ownership and queues a resend for the worker.
func (s *CampaignService) EnqueueResend(ctx context.Context, accountID, campaignID int) error {
	if s.Jobs == nil {
		return fmt.Errorf("async resend is not available")
	}
	if _, err := s.CampaignRepo.GetByID(ctx, accountID, campaignID); err != nil {
		return err
	}
	return s.Jobs.EnqueueResend(ctx, model.ResendJob{
		AccountID:  accountID,
		CampaignID: campaignID,
		QueuedAt:   s.now(),
	})
}

// reloadAndNotify reads back the stored campaign and pushes it to the
// account. When the read fails the in-memory copy is returned.
func (s *CampaignService) reloadAndNotify(ctx context.Context, accountID int, c *model.Campaign) *model.Campaign {
	updated, err := s.CampaignRepo.GetByID(ctx, accountID, c.ID)
	if err != nil {
		s.log().Warn("reload campaign after dispatch failed", zap.Int("campaign_id", c.ID), zap.Error(err))
		updated = c
	}
	if s.Notifier != nil {
		s.Notifier.CampaignUpdated(ctx, accountID, updated)
	}
	return updated
}

func (s *CampaignService) GetCampaign(ctx context.Context, accountID, campaignID int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(ctx, accountID, campaignID)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, accountID, page, pageSize int) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, accountID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignStats counts sent campaigns overall and over the last 30 days.
func (s *CampaignService) GetCampaignStats(ctx context.Context, accountID int) (*model.CampaignStats, error) {
	return s.CampaignRepo.GetStats(ctx, accountID, s.now().AddDate(0, 0, -30))
}

// ExportResults writes the campaign's delivery results as CSV.
func (s *CampaignService) ExportResults(ctx context.Context, accountID, campaignID int, w io.Writer) error {
	c, err := s.CampaignRepo.GetByID(ctx, accountID, campaignID)
	if err != nil {
		return err
	}
	return WriteResultsCSV(w, c)
}
