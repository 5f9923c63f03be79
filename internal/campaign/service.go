package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/ingest"
	"github.com/mixelka/novamailer/internal/mailer"
	"github.com/mixelka/novamailer/internal/parser"
	"github.com/mixelka/novamailer/pkg/models"
)

var (
	// ErrInvalidInput wraps request validation failures
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotDraft is returned when a campaign can no longer be changed
	ErrNotDraft = errors.New("campaign is not a draft")
	// ErrNotSending is returned when cancelling a campaign that is not sending
	ErrNotSending = errors.New("campaign is not sending")
	// ErrNoRecipients is returned when sending a campaign without pending recipients
	ErrNoRecipients = errors.New("campaign has no pending recipients")
	// ErrNoSMTPSettings is returned when the user has not configured SMTP yet
	ErrNoSMTPSettings = errors.New("smtp settings are not configured")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ServiceDeps contains dependencies for the service
type ServiceDeps struct {
	DB         *database.DB
	Pipeline   *ingest.Pipeline
	Dispatcher *mailer.Dispatcher
	Sender     mailer.Sender
	Cipher     *mailer.Cipher
	HTMLParser *parser.HTMLParser
	Variables  *parser.VariableDetector
	Logger     *slog.Logger
}

// Service implements the campaign workflow: campaigns, recipient imports,
// templates, SMTP settings and sending
type Service struct {
	db         *database.DB
	pipeline   *ingest.Pipeline
	dispatcher *mailer.Dispatcher
	sender     mailer.Sender
	cipher     *mailer.Cipher
	htmlParser *parser.HTMLParser
	variables  *parser.VariableDetector
	logger     *slog.Logger
}

// NewService creates a new campaign service
func NewService(deps ServiceDeps) *Service {
	return &Service{
		db:         deps.DB,
		pipeline:   deps.Pipeline,
		dispatcher: deps.Dispatcher,
		sender:     deps.Sender,
		cipher:     deps.Cipher,
		htmlParser: deps.HTMLParser,
		variables:  deps.Variables,
		logger:     deps.Logger.With("component", "campaign"),
	}
}

// CampaignInput is the payload for creating a campaign
type CampaignInput struct {
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID *int64 `json:"template_id,omitempty"`
}

// CreateCampaign creates a draft campaign. Subject and body default to the
// template's when a template is given.
func (s *Service) CreateCampaign(ctx context.Context, userID int64, input CampaignInput) (*models.Campaign, error) {
	c := &models.Campaign{
		UserID:     userID,
		TemplateID: input.TemplateID,
		Name:       strings.TrimSpace(input.Name),
		Subject:    strings.TrimSpace(input.Subject),
		Body:       input.Body,
		Status:     models.CampaignDraft,
	}

	if input.TemplateID != nil {
		tmpl, err := s.GetTemplate(ctx, userID, *input.TemplateID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, invalid("template %d does not exist", *input.TemplateID)
		}
		if err != nil {
			return nil, err
		}
		if c.Subject == "" {
			c.Subject = tmpl.Subject
		}
		if strings.TrimSpace(c.Body) == "" {
			c.Body = tmpl.BodyHTML
		}
	}

	switch {
	case c.Name == "":
		return nil, invalid("name is required")
	case c.Subject == "":
		return nil, invalid("subject is required")
	case strings.TrimSpace(c.Body) == "":
		return nil, invalid("body is required")
	}

	if err := s.db.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "user_id", userID)
	return c, nil
}

// GetCampaign returns a campaign owned by the user. Campaigns of other users
// are reported as not found.
func (s *Service) GetCampaign(ctx context.Context, userID, id int64) (*models.Campaign, error) {
	c, err := s.db.GetCampaignByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, database.ErrNotFound
	}
	return c, nil
}

// ListCampaigns returns the user's campaigns, newest first
func (s *Service) ListCampaigns(ctx context.Context, userID int64) ([]*models.Campaign, error) {
	return s.db.GetCampaignsByUser(ctx, userID)
}

// DeleteCampaign deletes a campaign that is not currently sending
func (s *Service) DeleteCampaign(ctx context.Context, userID, id int64) error {
	c, err := s.GetCampaign(ctx, userID, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignSending {
		return mailer.ErrAlreadySending
	}

	if err := s.db.DeleteCampaign(ctx, id); err != nil {
		return err
	}

	s.logger.Info("campaign deleted", "campaign_id", id, "user_id", userID)
	return nil
}

// ListRecipients returns a page of the campaign's recipients
func (s *Service) ListRecipients(ctx context.Context, userID, campaignID int64, limit, offset int) ([]*models.Recipient, error) {
	if _, err := s.GetCampaign(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	return s.db.GetRecipientsByCampaign(ctx, campaignID, limit, offset)
}

// Stats returns campaign and recipient counters of a user
func (s *Service) Stats(ctx context.Context, userID int64) (*models.Stats, error) {
	return s.db.GetStats(ctx, userID)
}
