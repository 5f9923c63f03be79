package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/pkg/models"
)

// Send moves a draft campaign to "sending" and hands it to the dispatcher
func (s *Service) Send(ctx context.Context, userID, campaignID int64) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignDraft {
		return nil, ErrNotDraft
	}

	if _, err := s.db.GetSMTPSettings(ctx, userID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoSMTPSettings
		}
		return nil, err
	}

	counts, err := s.db.CountRecipientsByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if counts[models.RecipientPending] == 0 {
		return nil, ErrNoRecipients
	}

	ok, err := s.db.TransitionCampaignStatus(ctx, campaignID, models.CampaignDraft, models.CampaignSending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotDraft
	}
	c.Status = models.CampaignSending

	if err := s.dispatcher.Start(ctx, c); err != nil {
		if _, revertErr := s.db.TransitionCampaignStatus(ctx, campaignID, models.CampaignSending, models.CampaignDraft); revertErr != nil {
			s.logger.Error("failed to revert campaign status", "campaign_id", campaignID, "error", revertErr)
		}
		return nil, fmt.Errorf("failed to start sending: %w", err)
	}

	s.logger.Info("campaign sending", "campaign_id", campaignID, "pending", counts[models.RecipientPending])
	return c, nil
}

// Cancel stops a sending campaign. It returns to draft once the in-flight
// message is done.
func (s *Service) Cancel(ctx context.Context, userID, campaignID int64) error {
	if _, err := s.GetCampaign(ctx, userID, campaignID); err != nil {
		return err
	}
	if !s.dispatcher.Cancel(campaignID) {
		return ErrNotSending
	}

	s.logger.Info("campaign cancel requested", "campaign_id", campaignID)
	return nil
}
