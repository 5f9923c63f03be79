package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mixelka/novamailer/internal/ingest"
)

// multipartOverhead is the body allowance on top of the file size limit for
// boundaries, part headers and small form fields
const multipartOverhead = 64 << 10

const uploadField = "file"

// readUpload streams the "file" part of a multipart request. The file is
// never buffered past limit+1 bytes.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errBadUpload("expected a multipart/form-data body")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errBadUpload(fmt.Sprintf("missing %q file field", uploadField))
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", ingest.SizeLimitError(h.maxUploadSize)
			}
			return nil, "", errBadUpload("invalid multipart body")
		}

		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		data, err := ingest.ReadLimited(part, h.maxUploadSize)
		part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", ingest.SizeLimitError(h.maxUploadSize)
			}
			return nil, "", err
		}
		return data, part.FileName(), nil
	}
}

type badUploadError struct {
	msg string
}

func (e *badUploadError) Error() string { return e.msg }

func errBadUpload(msg string) error {
	return &badUploadError{msg: msg}
}

func (h *Handlers) failUpload(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badUploadError
	if errors.As(err, &bad) {
		h.rs.BadRequest(w, bad.msg)
		return
	}
	h.rs.Fail(w, r, err)
}

// PreviewUpload handles POST /api/v1/uploads/preview: the ingestion report
// of a file without storing anything
func (h *Handlers) PreviewUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.readUpload(w, r)
	if err != nil {
		h.failUpload(w, r, err)
		return
	}

	report, err := h.svc.Preview(data, filename)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, report)
}

// ImportRecipients handles POST /api/v1/campaigns/{id}/recipients
func (h *Handlers) ImportRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	data, filename, err := h.readUpload(w, r)
	if err != nil {
		h.failUpload(w, r, err)
		return
	}

	result, err := h.svc.ImportRecipients(r.Context(), UserID(r.Context()), id, data, filename)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Created(w, result)
}

// ListUploads handles GET /api/v1/campaigns/{id}/uploads
func (h *Handlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	uploads, err := h.svc.ListUploads(r.Context(), UserID(r.Context()), id)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, uploads)
}

// GetUpload handles GET /api/v1/uploads/{uploadID}
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.svc.GetUpload(r.Context(), UserID(r.Context()), chi.URLParam(r, "uploadID"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.OK(w, upload)
}

// DownloadRejections handles GET /api/v1/uploads/{uploadID}/rejections.csv
func (h *Handlers) DownloadRejections(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	// Buffer so a failure can still become a JSON error
	var buf bytes.Buffer
	if err := h.svc.RejectionsCSV(r.Context(), UserID(r.Context()), uploadID, &buf); err != nil {
		h.rs.Fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rejections-%s.csv"`, uploadID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write rejections", "upload_id", uploadID, "error", err)
	}
}
