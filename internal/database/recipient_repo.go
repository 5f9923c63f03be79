package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/novamailer/pkg/models"
)

// GetRecipientsByCampaign returns a page of recipients in import order
func (db *DB) GetRecipientsByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*models.Recipient, error) {
	recipients := []*models.Recipient{}
	query := `SELECT * FROM recipients WHERE campaign_id = ? ORDER BY id LIMIT ? OFFSET ?`
	err := db.SelectContext(ctx, &recipients, query, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	return recipients, nil
}

// GetPendingRecipients returns up to limit recipients still waiting to be sent
func (db *DB) GetPendingRecipients(ctx context.Context, campaignID int64, limit int) ([]*models.Recipient, error) {
	recipients := []*models.Recipient{}
	query := `SELECT * FROM recipients WHERE campaign_id = ? AND status = 'pending' ORDER BY id LIMIT ?`
	err := db.SelectContext(ctx, &recipients, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending recipients: %w", err)
	}
	return recipients, nil
}

// CountRecipientsByStatus returns recipient counts keyed by status
func (db *DB) CountRecipientsByStatus(ctx context.Context, campaignID int64) (map[models.RecipientStatus]int, error) {
	var rows []struct {
		Status models.RecipientStatus `db:"status"`
		Count  int                    `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM recipients WHERE campaign_id = ? GROUP BY status`
	if err := db.SelectContext(ctx, &rows, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to count recipients: %w", err)
	}

	counts := make(map[models.RecipientStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// MarkRecipientSent marks a recipient as delivered to the SMTP server
func (db *DB) MarkRecipientSent(ctx context.Context, id int64) error {
	query := `UPDATE recipients SET status = 'sent', error = '', sent_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient sent: %w", err)
	}
	return nil
}

// MarkRecipientFailed records a delivery error for a recipient
func (db *DB) MarkRecipientFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE recipients SET status = 'failed', error = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient failed: %w", err)
	}
	return nil
}
