package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/novamailer/pkg/models"
)

// CreateUpload stores an upload record and its accepted recipients in one
// transaction. Addresses the campaign already has are skipped; the number of
// new recipients is written to upload.InsertedCount. ErrNotDraft is returned
// when the campaign is no longer a draft at commit time.
func (db *DB) CreateUpload(ctx context.Context, upload *models.Upload, recipients []*models.Recipient) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO uploads (public_id, campaign_id, user_id, filename, format, encoding, total_rows, accepted_count, rejected_count, duplicate_count, diagnostics, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM campaigns WHERE id = ? AND status = ?)
	`,
		upload.PublicID,
		upload.CampaignID,
		upload.UserID,
		upload.Filename,
		upload.Format,
		upload.Encoding,
		upload.TotalRows,
		upload.AcceptedCount,
		upload.RejectedCount,
		upload.DuplicateCount,
		upload.Diagnostics,
		now,
		upload.CampaignID,
		models.CampaignDraft,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotDraft
	}

	uploadID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO recipients (campaign_id, upload_id, email, name, attributes, source_row, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range recipients {
		res, err := stmt.ExecContext(ctx, upload.CampaignID, uploadID, r.Email, r.Name, r.Attributes, r.SourceRow, models.RecipientPending, now)
		if err != nil {
			return fmt.Errorf("failed to insert recipient %s: %w", r.Email, err)
		}
		// Zero rows means the campaign already had this address
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rowsAffected)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE uploads SET inserted_count = ? WHERE id = ?`, inserted, uploadID); err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}

	upload.ID = uploadID
	upload.InsertedCount = inserted
	upload.CreatedAt = now
	return nil
}

// GetUploadByPublicID returns an upload by its public UUID
func (db *DB) GetUploadByPublicID(ctx context.Context, publicID string) (*models.Upload, error) {
	var upload models.Upload
	query := `SELECT * FROM uploads WHERE public_id = ?`
	err := db.GetContext(ctx, &upload, query, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

// GetUploadsByCampaign returns all uploads of a campaign, oldest first
func (db *DB) GetUploadsByCampaign(ctx context.Context, campaignID int64) ([]*models.Upload, error) {
	uploads := []*models.Upload{}
	query := `SELECT * FROM uploads WHERE campaign_id = ? ORDER BY id`
	err := db.SelectContext(ctx, &uploads, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get uploads: %w", err)
	}
	return uploads, nil
}
