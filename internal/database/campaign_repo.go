package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/novamailer/pkg/models"
)

// CreateCampaign creates a new campaign
func (db *DB) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (user_id, template_id, name, subject, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if campaign.Status == "" {
		campaign.Status = models.CampaignDraft
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		campaign.UserID,
		campaign.TemplateID,
		campaign.Name,
		campaign.Subject,
		campaign.Body,
		campaign.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	campaign.ID = id
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	return nil
}

// GetCampaignByID returns a campaign by ID
func (db *DB) GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error) {
	var campaign models.Campaign
	query := `SELECT * FROM campaigns WHERE id = ?`
	err := db.GetContext(ctx, &campaign, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

// GetCampaignsByUser returns all campaigns of a user, newest first
func (db *DB) GetCampaignsByUser(ctx context.Context, userID int64) ([]*models.Campaign, error) {
	campaigns := []*models.Campaign{}
	query := `SELECT * FROM campaigns WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	err := db.SelectContext(ctx, &campaigns, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaignsByStatus returns campaigns in the given status
func (db *DB) GetCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]*models.Campaign, error) {
	campaigns := []*models.Campaign{}
	query := `SELECT * FROM campaigns WHERE status = ? ORDER BY id`
	err := db.SelectContext(ctx, &campaigns, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaigns: %w", err)
	}
	return campaigns, nil
}

// TransitionCampaignStatus moves a campaign from one status to another.
// Returns false when the campaign was not in the expected status.
func (db *DB) TransitionCampaignStatus(ctx context.Context, id int64, from, to models.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status = ?, updated_at = ?, sent_at = ? WHERE id = ? AND status = ?`

	now := time.Now().UTC()
	var sentAt *time.Time
	if to == models.CampaignCompleted || to == models.CampaignFailed {
		sentAt = &now
	}

	result, err := db.ExecContext(ctx, query, to, now, sentAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteCampaign deletes a campaign with its recipients and uploads
func (db *DB) DeleteCampaign(ctx context.Context, id int64) error {
	query := `DELETE FROM campaigns WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

// GetStats returns campaign and recipient counters for a user
func (db *DB) GetStats(ctx context.Context, userID int64) (*models.Stats, error) {
	var stats models.Stats
	query := `
		SELECT
			(SELECT COUNT(*) FROM campaigns WHERE user_id = ?) AS campaigns,
			(SELECT COUNT(*) FROM campaigns WHERE user_id = ? AND status = 'draft') AS drafts,
			COUNT(r.id) AS recipients,
			COALESCE(SUM(CASE WHEN r.status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN r.status = 'sent' THEN 1 ELSE 0 END), 0) AS sent,
			COALESCE(SUM(CASE WHEN r.status = 'failed' THEN 1 ELSE 0 END), 0) AS failed
		FROM recipients r
		JOIN campaigns c ON r.campaign_id = c.id
		WHERE c.user_id = ?
	`
	err := db.GetContext(ctx, &stats, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}
