package campaign

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/ingest"
	"github.com/mixelka/novamailer/pkg/models"
)

// ImportResult is returned by ImportRecipients
type ImportResult struct {
	Upload *models.Upload `json:"upload"`
	Report *ingest.Report `json:"report"`
	// MissingVariables lists {{placeholders}} of the campaign that no
	// uploaded column provides
	MissingVariables []string `json:"missing_variables"`
}

// uploadDiagnostics is stored with each upload for the rejection report
type uploadDiagnostics struct {
	Columns    []string              `json:"columns"`
	Rejected   []ingest.RejectedRow  `json:"rejected"`
	Duplicates []ingest.DuplicateRow `json:"duplicates"`
}

// Preview ingests an upload without storing anything
func (s *Service) Preview(data []byte, filename string) (*ingest.Report, error) {
	return s.pipeline.Ingest(data, filename)
}

// ImportRecipients ingests an upload into a draft campaign. Structural
// errors are returned unchanged as *ingest.StructuralError.
func (s *Service) ImportRecipients(ctx context.Context, userID, campaignID int64, data []byte, filename string) (*ImportResult, error) {
	c, err := s.GetCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignDraft {
		return nil, ErrNotDraft
	}

	report, err := s.pipeline.Ingest(data, filename)
	if err != nil {
		s.logger.Info("upload rejected", "campaign_id", campaignID, "filename", filename, "error", err)
		return nil, err
	}

	diagnostics, err := json.Marshal(uploadDiagnostics{
		Columns:    report.Columns,
		Rejected:   report.Rejected,
		Duplicates: report.Duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	recipients := make([]*models.Recipient, 0, len(report.Accepted))
	for _, r := range report.Accepted {
		attributes := ""
		if len(r.Attributes) > 0 {
			raw, err := json.Marshal(r.Attributes)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal attributes: %w", err)
			}
			attributes = string(raw)
		}
		recipients = append(recipients, &models.Recipient{
			Email:      r.Email,
			Name:       r.Name,
			Attributes: attributes,
			SourceRow:  r.Row,
		})
	}

	upload := &models.Upload{
		PublicID:       uuid.NewString(),
		CampaignID:     campaignID,
		UserID:         userID,
		Filename:       filepath.Base(filename),
		Format:         string(report.Format),
		Encoding:       string(report.Encoding),
		TotalRows:      report.TotalRows,
		AcceptedCount:  report.AcceptedCount,
		RejectedCount:  report.RejectedCount,
		DuplicateCount: report.DuplicateCount,
		Diagnostics:    string(diagnostics),
	}
	err = s.db.CreateUpload(ctx, upload, recipients)
	if errors.Is(err, database.ErrNotDraft) {
		return nil, ErrNotDraft
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("recipients imported",
		"campaign_id", campaignID,
		"upload_id", upload.PublicID,
		"size", humanize.IBytes(uint64(len(data))),
		"format", report.Format,
		"encoding", report.Encoding,
		"total", report.TotalRows,
		"accepted", report.AcceptedCount,
		"rejected", report.RejectedCount,
		"duplicates", report.DuplicateCount,
		"inserted", upload.InsertedCount,
	)

	columns := append([]string{"email", "name"}, report.Columns...)
	vars := s.variables.DetectVariables(c.Subject, c.Body)

	return &ImportResult{
		Upload:           upload,
		Report:           report,
		MissingVariables: s.variables.Missing(vars, columns),
	}, nil
}

// ListUploads returns the uploads of a campaign, oldest first
func (s *Service) ListUploads(ctx context.Context, userID, campaignID int64) ([]*models.Upload, error) {
	if _, err := s.GetCampaign(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	return s.db.GetUploadsByCampaign(ctx, campaignID)
}

// GetUpload returns an upload owned by the user
func (s *Service) GetUpload(ctx context.Context, userID int64, publicID string) (*models.Upload, error) {
	upload, err := s.db.GetUploadByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if upload.UserID != userID {
		return nil, database.ErrNotFound
	}
	return upload, nil
}

// RejectionsCSV writes the rejected rows of an upload as CSV:
// row,reason,email followed by the original columns
func (s *Service) RejectionsCSV(ctx context.Context, userID int64, publicID string, w io.Writer) error {
	upload, err := s.GetUpload(ctx, userID, publicID)
	if err != nil {
		return err
	}

	var diag uploadDiagnostics
	if err := json.Unmarshal([]byte(upload.Diagnostics), &diag); err != nil {
		return fmt.Errorf("failed to decode diagnostics: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"row", "reason", "email"}, diag.Columns...)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	for _, r := range diag.Rejected {
		record := append([]string{strconv.Itoa(r.Row), string(r.Reason), r.Email}, r.Values...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
