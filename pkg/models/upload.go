package models

import "time"

// Upload records one recipient list import
type Upload struct {
	ID             int64     `db:"id" json:"-"`
	PublicID       string    `db:"public_id" json:"id"` // UUID exposed over the API
	CampaignID     int64     `db:"campaign_id" json:"campaign_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Filename       string    `db:"filename" json:"filename"`
	Format         string    `db:"format" json:"format"`
	Encoding       string    `db:"encoding" json:"encoding"`
	TotalRows      int       `db:"total_rows" json:"total_rows"`
	AcceptedCount  int       `db:"accepted_count" json:"accepted_count"`
	RejectedCount  int       `db:"rejected_count" json:"rejected_count"`
	DuplicateCount int       `db:"duplicate_count" json:"duplicate_count"`
	InsertedCount  int       `db:"inserted_count" json:"inserted_count"` // Accepted rows not already on the campaign
	Diagnostics    string    `db:"diagnostics" json:"-"`                 // JSON: rejected + duplicate rows
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
