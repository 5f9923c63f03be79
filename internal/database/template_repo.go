package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/novamailer/pkg/models"
)

// CreateTemplate creates a new template. Names are unique per user.
func (db *DB) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	query := `
		INSERT OR IGNORE INTO templates (user_id, name, subject, body_html, body_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		tmpl.UserID,
		tmpl.Name,
		tmpl.Subject,
		tmpl.BodyHTML,
		tmpl.BodyText,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tmpl.ID = id
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	return nil
}

// GetTemplateByID returns a template by ID
func (db *DB) GetTemplateByID(ctx context.Context, id int64) (*models.Template, error) {
	var tmpl models.Template
	query := `SELECT * FROM templates WHERE id = ?`
	err := db.GetContext(ctx, &tmpl, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tmpl, nil
}

// GetTemplatesByUser returns all templates of a user
func (db *DB) GetTemplatesByUser(ctx context.Context, userID int64) ([]*models.Template, error) {
	templates := []*models.Template{}
	query := `SELECT * FROM templates WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	err := db.SelectContext(ctx, &templates, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate deletes a template
func (db *DB) DeleteTemplate(ctx context.Context, id int64) error {
	query := `DELETE FROM templates WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}
