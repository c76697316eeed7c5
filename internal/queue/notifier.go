package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

const EventCampaignUpdated = "campaign-updated"

// CampaignEvent is pushed to the owning account's room after a dispatch.
type CampaignEvent struct {
	Event    string          `json:"event"`
	Room     string          `json:"room"`
	Campaign *model.Campaign `json:"campaign"`
}

// Notifier hands finished campaigns to the real-time channel.
type Notifier interface {
	CampaignUpdated(ctx context.Context, accountID int, c *model.Campaign)
}

// QueueNotifier publishes campaign events on a topic. Publishing is fire and
// forget: failures are only logged.
type QueueNotifier struct {
	Queue Queue
	Topic string
	Log   *zap.Logger
}

func (n *QueueNotifier) CampaignUpdated(ctx context.Context, accountID int, c *model.Campaign) {
	ev := CampaignEvent{
		Event:    EventCampaignUpdated,
		Room:     fmt.Sprintf("user-%d", accountID),
		Campaign: c,
	}
	if err := n.Queue.Publish(ctx, n.Topic, ev); err != nil {
		logger.OrNop(n.Log).Warn("campaign update notification failed",
			zap.Int("account_id", accountID), zap.Int("campaign_id", c.ID), zap.Error(err))
	}
}

// Jobs publishes asynchronous resend requests.
type Jobs struct {
	Queue Queue
	Topic string
}

func (j *Jobs) EnqueueResend(ctx context.Context, job model.ResendJob) error {
	return j.Queue.Publish(ctx, j.Topic, job)
}

// ResendJobHandler decodes resend jobs and hands them to a worker channel.
// It blocks while the channel is full, which holds back further deliveries.
func ResendJobHandler(jobs chan<- model.ResendJob) Handler {
	return func(ctx context.Context, body []byte) error {
		var job model.ResendJob
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("queue: invalid resend job: %w", err)
		}
		if job.AccountID < 1 || job.CampaignID < 1 {
			return fmt.Errorf("queue: resend job missing ids: %s", body)
		}
		select {
		case jobs <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
