package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/pkg/models"
)

// TemplateInput is the payload for creating a template
type TemplateInput struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// CreateTemplate stores a template with its derived text body
func (s *Service) CreateTemplate(ctx context.Context, userID int64, input TemplateInput) (*models.Template, error) {
	tmpl := &models.Template{
		UserID:   userID,
		Name:     strings.TrimSpace(input.Name),
		Subject:  strings.TrimSpace(input.Subject),
		BodyHTML: input.BodyHTML,
	}

	switch {
	case tmpl.Name == "":
		return nil, invalid("name is required")
	case tmpl.Subject == "":
		return nil, invalid("subject is required")
	case strings.TrimSpace(tmpl.BodyHTML) == "":
		return nil, invalid("body_html is required")
	}

	text, err := s.htmlParser.Parse(tmpl.BodyHTML)
	if err != nil {
		return nil, invalid("body_html is not valid HTML")
	}
	tmpl.BodyText = text

	if err := s.db.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	s.withVariables(tmpl)
	return tmpl, nil
}

// GetTemplate returns a template owned by the user
func (s *Service) GetTemplate(ctx context.Context, userID, id int64) (*models.Template, error) {
	tmpl, err := s.db.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl.UserID != userID {
		return nil, database.ErrNotFound
	}
	s.withVariables(tmpl)
	return tmpl, nil
}

// ListTemplates returns the user's templates
func (s *Service) ListTemplates(ctx context.Context, userID int64) ([]*models.Template, error) {
	templates, err := s.db.GetTemplatesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, tmpl := range templates {
		s.withVariables(tmpl)
	}
	return templates, nil
}

// DeleteTemplate deletes a template. Campaigns created from it keep their copy.
func (s *Service) DeleteTemplate(ctx context.Context, userID, id int64) error {
	if _, err := s.GetTemplate(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template %d: %w", id, err)
	}
	return nil
}

func (s *Service) withVariables(tmpl *models.Template) {
	tmpl.Variables = s.variables.DetectVariables(tmpl.Subject, tmpl.BodyHTML)
	if tmpl.Variables == nil {
		tmpl.Variables = []string{}
	}
}
