package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/novamailer/internal/campaign"
	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/ingest"
	"github.com/mixelka/novamailer/internal/mailer"
	"github.com/mixelka/novamailer/internal/parser"
)

const testKey = "0123456789abcdef0123456789abcdef"

type nopSender struct{}

func (nopSender) Send(ctx context.Context, account mailer.Account, from, to string, msg []byte) error {
	return nil
}

func (nopSender) Verify(ctx context.Context, account mailer.Account) error {
	return fmt.Errorf("535 authentication failed")
}

func newTestRouter(t *testing.T, maxUpload int64) http.Handler {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher, err := mailer.NewCipher(testKey)
	require.NoError(t, err)
	htmlParser := parser.NewHTMLParser()

	dispatcher := mailer.NewDispatcher(mailer.DispatcherDeps{
		Store:    db,
		Sender:   nopSender{},
		Composer: mailer.NewComposer(htmlParser),
		Cipher:   cipher,
		Logger:   logger,
	})
	t.Cleanup(func() {
		dispatcher.StopAll()
		db.Close()
	})

	cfg := ingest.DefaultConfig()
	cfg.MaxUploadSize = maxUpload
	svc := campaign.NewService(campaign.ServiceDeps{
		DB:         db,
		Pipeline:   ingest.NewPipeline(cfg),
		Dispatcher: dispatcher,
		Sender:     nopSender{},
		Cipher:     cipher,
		HTMLParser: htmlParser,
		Variables:  parser.NewVariableDetector(),
		Logger:     logger,
	})

	return NewRouter(Deps{
		Service:       svc,
		Health:        db,
		Tokens:        map[string]int64{"token-1": 1, "token-2": 2},
		CORSOrigins:   []string{"http://localhost:3000"},
		MaxUploadSize: maxUpload,
		Logger:        logger,
	})
}

func do(t *testing.T, h http.Handler, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return do(t, h, method, path, token, body, "application/json")
}

func upload(t *testing.T, h http.Handler, path, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return do(t, h, http.MethodPost, path, token, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := do(t, h, http.MethodGet, "/api", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to NovaMailer API", decode[map[string]string](t, rec)["message"])

	rec = do(t, h, http.MethodGet, "/api/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestAuthRequired(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := do(t, h, http.MethodGet, "/api/v1/campaigns", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/campaigns", "wrong", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/campaigns", "token-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestPreviewUpload(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := upload(t, h, "/api/v1/uploads/preview", "token-1", "list.csv",
		"E-Mail,Full Name\nann@example.com,Ann\nnope,Bad\nANN@example.com,Dup\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[ingest.Report](t, rec)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 1, report.AcceptedCount)
	assert.Equal(t, 1, report.RejectedCount)
	assert.Equal(t, 1, report.DuplicateCount)
	assert.Equal(t, "E-Mail", report.EmailColumn)
	assert.Equal(t, "Full Name", report.NameColumn)
	assert.Equal(t, "Ann", report.Accepted[0].Name)
}

func TestPreviewUpload_StructuralErrors(t *testing.T) {
	h := newTestRouter(t, 64)

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
		code     string
	}{
		{"missing email column", "list.csv", "name\nAnn\n", http.StatusBadRequest, "missing_email_column"},
		{"ambiguous email column", "list.csv", "email,e-mail\na@x.io,b@x.io\n", http.StatusBadRequest, "ambiguous_email_column"},
		{"unsupported format", "list.pdf", "email\n", http.StatusBadRequest, "unsupported_format"},
		{"malformed", "list.csv", "email\n\"a@x.io\n", http.StatusBadRequest, "malformed_input"},
		{"too large", "list.csv", "email\n" + strings.Repeat("a@example.com\n", 10), http.StatusRequestEntityTooLarge, "size_limit_exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, h, "/api/v1/uploads/preview", "token-1", tt.filename, tt.content)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}

	rec := do(t, h, http.MethodPost, "/api/v1/uploads/preview", "token-1", strings.NewReader("email\n"), "text/csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignImportFlow(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/campaigns", "token-1", map[string]string{
		"name": "Launch", "subject": "Hi {{name}}", "body": "<p>Hello {{name}} at {{company}}</p>",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	id := int64(created["id"].(float64))
	assert.Equal(t, "draft", created["status"])

	base := fmt.Sprintf("/api/v1/campaigns/%d", id)

	rec = upload(t, h, base+"/recipients", "token-1", "list.csv",
		"email,name,company\nann@example.com,Ann,Acme\nbroken,Bob,Bobco\nben@example.com,Ben,\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result struct {
		Upload struct {
			ID            string `json:"id"`
			InsertedCount int    `json:"inserted_count"`
		} `json:"upload"`
		Report           ingest.Report `json:"report"`
		MissingVariables []string      `json:"missing_variables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Upload.InsertedCount)
	assert.Equal(t, 1, result.Report.RejectedCount)
	assert.Empty(t, result.MissingVariables)

	rec = do(t, h, http.MethodGet, base+"/recipients?limit=1", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/uploads/"+result.Upload.ID+"/rejections.csv", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "row,reason,email,email,name,company\n2,invalid_email_syntax,broken,broken,Bob,Bobco\n", rec.Body.String())

	// Other users see nothing
	rec = do(t, h, http.MethodGet, base, "token-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/uploads/"+result.Upload.ID+"/rejections.csv", "token-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/uploads", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	// Sending needs SMTP settings first
	rec = doJSON(t, h, http.MethodPost, base+"/send", "token-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_smtp_settings", decode[ErrorResponse](t, rec).Code)

	rec = doJSON(t, h, http.MethodPost, base+"/cancel", "token-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, base, "token-1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, base, "token-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaignValidation(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/campaigns", "token-1", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/campaigns", "token-1", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/campaigns/abc", "token-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplatesAPI(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/templates", "token-1", map[string]string{
		"name": "Welcome", "subject": "Hi {{name}}", "body_html": "<h1>Hello {{name}}</h1><p>{{discount_code}}</p>",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tmpl := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"name", "discount_code"}, tmpl["variables"])
	assert.Equal(t, "Hello {{name}}\n\n{{discount_code}}", tmpl["body_text"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/templates", "token-1", map[string]string{
		"name": "Welcome", "subject": "x", "body_html": "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := fmt.Sprintf("/api/v1/templates/%d", int64(tmpl["id"].(float64)))
	rec = do(t, h, http.MethodGet, path, "token-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, path, "token-1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSMTPAPI(t *testing.T) {
	h := newTestRouter(t, ingest.DefaultMaxUploadSize)

	rec := do(t, h, http.MethodGet, "/api/v1/smtp", "token-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/v1/smtp", "token-1", map[string]any{
		"host": "smtp.example.com", "port": 587, "username": "me", "password": "hunter2", "from_email": "me@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = do(t, h, http.MethodGet, "/api/v1/smtp", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "starttls", decode[map[string]any](t, rec)["tls_mode"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/smtp/test", "token-1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "535")

	rec = do(t, h, http.MethodGet, "/api/v1/smtp/suggest?email=me@gmail.com", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "smtp.gmail.com", decode[map[string]any](t, rec)["host"])

	rec = do(t, h, http.MethodGet, "/api/v1/smtp/suggest?email=nope", "token-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/stats", "token-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
