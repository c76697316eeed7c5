// internal/model/campaign.go
package model

import "time"

type Campaign struct {
	ID            int              `db:"id" json:"id"`
	AccountID     int              `db:"user_id" json:"user_id"`
	Subject       string           `db:"subject" json:"subject"`
	Template      string           `db:"template" json:"template"`
	Recipients    []Recipient      `db:"recipients" json:"recipients"`
	VariableNames []string         `db:"variables" json:"variables"`
	SentAt        *time.Time       `db:"sent_at" json:"sent_at"`
	SendResults   []DeliveryResult `db:"send_results" json:"send_results"`
	ResendCount   int              `db:"resend_count" json:"resend_count"`
	DatasetID     *int             `db:"database_id" json:"database_id,omitempty"`
	FileName      string           `db:"file_name" json:"file_name,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// CampaignStats aggregates sent campaigns for one account.
type CampaignStats struct {
	TotalCampaigns       int `json:"totalCampaigns"`
	TotalRecipients      int `json:"totalRecipients"`
	Last30DaysCampaigns  int `json:"last30DaysCampaigns"`
	Last30DaysRecipients int `json:"last30DaysRecipients"`
}

// ResendJob is the payload of an asynchronous resend request.
type ResendJob struct {
	AccountID  int       `json:"account_id"`
	CampaignID int       `json:"campaign_id"`
	QueuedAt   time.Time `json:"queued_at"`
}
