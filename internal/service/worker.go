package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// CampaignResender defines the method the worker needs
type CampaignResender interface {
	ResendCampaign(ctx context.Context, accountID, campaignID int) (*ResendResult, error)
}

// Worker processes queued resend jobs one at a time.
type Worker struct {
	Campaigns CampaignResender
	JobChan   <-chan model.ResendJob
	Logger    *zap.Logger
}

// Constructor
func NewWorker(campaigns CampaignResender, jobChan <-chan model.ResendJob, log *zap.Logger) *Worker {
	return &Worker{
		Campaigns: campaigns,
		JobChan:   jobChan,
		Logger:    logger.OrNop(log),
	}
}

// Start begins processing jobs until the channel closes or ctx is done.
// A failed resend is logged and dropped; it is never retried.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.JobChan:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job model.ResendJob) {
	log := w.Logger.With(zap.Int("account_id", job.AccountID), zap.Int("campaign_id", job.CampaignID))

	res, err := w.Campaigns.ResendCampaign(ctx, job.AccountID, job.CampaignID)
	if err != nil {
		log.Error("resend job failed", zap.Error(err))
		return
	}
	log.Info("resend job done",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("resend_count", res.ResendCount))
}
