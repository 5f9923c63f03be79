package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/novamailer/pkg/models"
)

// UpsertSMTPSettings creates or replaces the SMTP settings of a user
func (db *DB) UpsertSMTPSettings(ctx context.Context, settings *models.SMTPSettings) error {
	query := `
		INSERT INTO smtp_settings (user_id, host, port, username, password, from_email, from_name, tls_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			from_email = excluded.from_email,
			from_name = excluded.from_name,
			tls_mode = excluded.tls_mode,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		settings.UserID,
		settings.Host,
		settings.Port,
		settings.Username,
		settings.Password,
		settings.FromEmail,
		settings.FromName,
		settings.TLSMode,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save smtp settings: %w", err)
	}

	stored, err := db.GetSMTPSettings(ctx, settings.UserID)
	if err != nil {
		return err
	}
	*settings = *stored
	return nil
}

// GetSMTPSettings returns the SMTP settings of a user
func (db *DB) GetSMTPSettings(ctx context.Context, userID int64) (*models.SMTPSettings, error) {
	var settings models.SMTPSettings
	query := `SELECT * FROM smtp_settings WHERE user_id = ?`
	err := db.GetContext(ctx, &settings, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get smtp settings: %w", err)
	}
	return &settings, nil
}

// DeleteSMTPSettings removes the SMTP settings of a user
func (db *DB) DeleteSMTPSettings(ctx context.Context, userID int64) error {
	query := `DELETE FROM smtp_settings WHERE user_id = ?`
	_, err := db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete smtp settings: %w", err)
	}
	return nil
}
