package models

import "time"

// RecipientStatus delivery state of a single recipient
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient represents one address a campaign is sent to
type Recipient struct {
	ID         int64           `db:"id" json:"id"`
	CampaignID int64           `db:"campaign_id" json:"campaign_id"` // FK to Campaign
	UploadID   *int64          `db:"upload_id" json:"upload_id,omitempty"`
	Email      string          `db:"email" json:"email"` // Normalized, lowercase
	Name       string          `db:"name" json:"name,omitempty"`
	Attributes string          `db:"attributes" json:"attributes,omitempty"` // JSON object of extra columns
	SourceRow  int             `db:"source_row" json:"source_row"`           // Row in the uploaded file
	Status     RecipientStatus `db:"status" json:"status"`
	Error      string          `db:"error" json:"error,omitempty"` // Last delivery error
	SentAt     *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
