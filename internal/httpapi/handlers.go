package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mixelka/novamailer/internal/campaign"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// idParam parses a numeric URL parameter. Writes a 400 and returns false
// when it is not a positive integer.
func (h *Handlers) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.rs.BadRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.svc.ListCampaigns(r.Context(), UserID(r.Context()))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, campaigns)
}

// CreateCampaign handles POST /api/v1/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CampaignInput
	if !h.rs.Decode(w, r, &input) {
		return
	}

	c, err := h.svc.CreateCampaign(r.Context(), UserID(r.Context()), input)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Created(w, c)
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	c, err := h.svc.GetCampaign(r.Context(), UserID(r.Context()), id)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, c)
}

// DeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteCampaign(r.Context(), UserID(r.Context()), id); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.NoContent(w)
}

// ListRecipients handles GET /api/v1/campaigns/{id}/recipients?limit=&offset=
func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)

	recipients, err := h.svc.ListRecipients(r.Context(), UserID(r.Context()), id, limit, offset)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, recipients)
}

// SendCampaign handles POST /api/v1/campaigns/{id}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	c, err := h.svc.Send(r.Context(), UserID(r.Context()), id)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusAccepted, c)
}

// CancelCampaign handles POST /api/v1/campaigns/{id}/cancel
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), UserID(r.Context()), id); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.ListTemplates(r.Context(), UserID(r.Context()))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, templates)
}

// CreateTemplate handles POST /api/v1/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var input campaign.TemplateInput
	if !h.rs.Decode(w, r, &input) {
		return
	}

	tmpl, err := h.svc.CreateTemplate(r.Context(), UserID(r.Context()), input)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Created(w, tmpl)
}

// GetTemplate handles GET /api/v1/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	tmpl, err := h.svc.GetTemplate(r.Context(), UserID(r.Context()), id)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, tmpl)
}

// DeleteTemplate handles DELETE /api/v1/templates/{id}
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteTemplate(r.Context(), UserID(r.Context()), id); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.NoContent(w)
}

// GetSMTPSettings handles GET /api/v1/smtp
func (h *Handlers) GetSMTPSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSMTPSettings(r.Context(), UserID(r.Context()))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, settings)
}

// SaveSMTPSettings handles PUT /api/v1/smtp
func (h *Handlers) SaveSMTPSettings(w http.ResponseWriter, r *http.Request) {
	var input campaign.SMTPInput
	if !h.rs.Decode(w, r, &input) {
		return
	}

	settings, err := h.svc.SaveSMTPSettings(r.Context(), UserID(r.Context()), input)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, settings)
}

// TestSMTP handles POST /api/v1/smtp/test. Connection and auth failures are
// reported as 502 with the server's answer.
func (h *Handlers) TestSMTP(w http.ResponseWriter, r *http.Request) {
	err := h.svc.TestSMTP(r.Context(), UserID(r.Context()))
	switch {
	case err == nil:
		h.rs.OK(w, map[string]string{"status": "ok"})
	case errors.Is(err, campaign.ErrNoSMTPSettings):
		h.rs.Fail(w, r, err)
	default:
		h.logger.Info("smtp test failed", "user_id", UserID(r.Context()), "error", err)
		h.rs.Error(w, http.StatusBadGateway, err.Error(), "smtp_unreachable")
	}
}

// SuggestSMTP handles GET /api/v1/smtp/suggest?email=
func (h *Handlers) SuggestSMTP(w http.ResponseWriter, r *http.Request) {
	suggestion, err := h.svc.SuggestSMTP(r.URL.Query().Get("email"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, suggestion)
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), UserID(r.Context()))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, stats)
}
