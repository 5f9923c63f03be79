package mailer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/mixelka/novamailer/internal/parser"
)

// Message is one outbound email
type Message struct {
	From    *mail.Address
	To      *mail.Address
	Subject string
	HTML    string
	// Text is derived from HTML when empty
	Text string
}

// Composer builds multipart/alternative MIME messages
type Composer struct {
	htmlParser *parser.HTMLParser
	now        func() time.Time
}

// NewComposer creates a new composer
func NewComposer(htmlParser *parser.HTMLParser) *Composer {
	return &Composer{
		htmlParser: htmlParser,
		now:        time.Now,
	}
}

// PlainText returns the text/plain alternative of an HTML body
func (c *Composer) PlainText(html string) (string, error) {
	text, err := c.htmlParser.Parse(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return text, nil
}

// Compose renders msg as RFC 5322 bytes with a text and an HTML part
func (c *Composer) Compose(msg *Message) ([]byte, error) {
	if msg.From == nil || msg.To == nil {
		return nil, fmt.Errorf("message needs both From and To")
	}

	text := msg.Text
	if text == "" && msg.HTML != "" {
		var err error
		if text, err = c.PlainText(msg.HTML); err != nil {
			return nil, err
		}
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetDate(c.now())
	h.SetAddressList("From", []*mail.Address{msg.From})
	h.SetAddressList("To", []*mail.Address{msg.To})
	h.SetSubject(msg.Subject)
	domain := DomainFromEmail(msg.From.Address)
	if domain == "" {
		domain = "localhost"
	}
	h.SetMessageID(uuid.NewString() + "@" + domain)

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	if err := writePart(w, "text/plain", text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(w, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}
