package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/mailer"
	"github.com/mixelka/novamailer/pkg/models"
)

const verifyTimeout = 30 * time.Second

// SMTPInput is the payload for saving SMTP settings. An empty password keeps
// the stored one.
type SMTPInput struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	TLSMode   string `json:"tls_mode"`
}

// GetSMTPSettings returns the user's SMTP settings
func (s *Service) GetSMTPSettings(ctx context.Context, userID int64) (*models.SMTPSettings, error) {
	return s.db.GetSMTPSettings(ctx, userID)
}

// SaveSMTPSettings validates and stores SMTP settings with the password
// encrypted
func (s *Service) SaveSMTPSettings(ctx context.Context, userID int64, input SMTPInput) (*models.SMTPSettings, error) {
	settings := &models.SMTPSettings{
		UserID:   userID,
		Host:     strings.TrimSpace(input.Host),
		Port:     input.Port,
		Username: strings.TrimSpace(input.Username),
		FromName: strings.TrimSpace(input.FromName),
		TLSMode:  strings.ToLower(strings.TrimSpace(input.TLSMode)),
	}
	if settings.TLSMode == "" {
		settings.TLSMode = models.TLSModeStartTLS
	}

	fromEmail, reason := s.pipeline.Validator().NormalizeEmail(input.FromEmail)
	switch {
	case settings.Host == "":
		return nil, invalid("host is required")
	case settings.Port <= 0 || settings.Port > 65535:
		return nil, invalid("port must be between 1 and 65535")
	case reason != "":
		return nil, invalid("from_email is not a valid address")
	}
	settings.FromEmail = fromEmail

	switch settings.TLSMode {
	case models.TLSModeStartTLS, models.TLSModeImplicit, models.TLSModeNone:
	default:
		return nil, invalid("tls_mode must be one of starttls, tls, none")
	}

	if input.Password != "" {
		encrypted, err := s.cipher.Encrypt(input.Password)
		if err != nil {
			return nil, err
		}
		settings.Password = encrypted
	} else {
		existing, err := s.db.GetSMTPSettings(ctx, userID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			settings.Password = existing.Password
		}
	}

	if err := s.db.UpsertSMTPSettings(ctx, settings); err != nil {
		return nil, err
	}

	s.logger.Info("smtp settings saved", "user_id", userID, "host", settings.Host, "tls_mode", settings.TLSMode)
	return settings, nil
}

// TestSMTP connects to the stored server and authenticates
func (s *Service) TestSMTP(ctx context.Context, userID int64) error {
	settings, err := s.db.GetSMTPSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNoSMTPSettings
		}
		return err
	}

	password, err := s.cipher.Decrypt(settings.Password)
	if err != nil {
		return fmt.Errorf("failed to decrypt smtp password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	return s.sender.Verify(ctx, mailer.AccountFromSettings(settings, password))
}

// SuggestSMTP guesses server settings for a sender address
func (s *Service) SuggestSMTP(email string) (mailer.ServerSuggestion, error) {
	suggestion, err := mailer.SuggestServer(email)
	if err != nil {
		return mailer.ServerSuggestion{}, invalid("email is not a valid address")
	}
	return suggestion, nil
}
