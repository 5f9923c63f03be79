package models

import "time"

// CampaignStatus lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign represents an email campaign
type Campaign struct {
	ID         int64          `db:"id" json:"id"`
	UserID     int64          `db:"user_id" json:"user_id"`
	TemplateID *int64         `db:"template_id" json:"template_id,omitempty"`
	Name       string         `db:"name" json:"name"`
	Subject    string         `db:"subject" json:"subject"`
	Body       string         `db:"body" json:"body"` // HTML body
	Status     CampaignStatus `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
	SentAt     *time.Time     `db:"sent_at" json:"sent_at,omitempty"` // When sending finished
}
