package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

// RejectReason is the row-level rejection code
type RejectReason string

const (
	ReasonEmptyEmail         RejectReason = "empty_email"
	ReasonInvalidEmailSyntax RejectReason = "invalid_email_syntax"
)

const maxEmailLength = 254

// Recipient is an accepted, normalized row
type Recipient struct {
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Row        int               `json:"row"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RejectedRow is a row that failed validation. Values holds the raw cells.
type RejectedRow struct {
	Row    int          `json:"row"`
	Reason RejectReason `json:"reason"`
	Email  string       `json:"email"`
	Values []string     `json:"values"`
}

type candidate struct {
	row        int
	email      string
	name       string
	cells      []string
	attributes map[string]string
}

// outcome holds exactly one of recipient or rejected
type outcome struct {
	recipient *Recipient
	rejected  *RejectedRow
}

// Validator checks and normalizes candidate rows. Safe for concurrent use.
type Validator struct {
	emailRegex *regexp.Regexp
}

// NewValidator creates a new row validator
func NewValidator() *Validator {
	return &Validator{
		// local@label(.label)+ with a single @ and no whitespace, control or format characters
		emailRegex: regexp.MustCompile(`^[^\s\p{Z}\p{C}@]+@[^\s\p{Z}\p{C}@.]+(?:\.[^\s\p{Z}\p{C}@.]+)+$`),
	}
}

// NormalizeEmail trims and lowercases raw and checks the address grammar.
// The returned reason is empty when the address is acceptable.
func (v *Validator) NormalizeEmail(raw string) (string, RejectReason) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ReasonEmptyEmail
	}

	email = strings.ToLower(email)
	// RE2 \s is ASCII only
	if strings.IndexFunc(email, unicode.IsSpace) >= 0 {
		return "", ReasonInvalidEmailSyntax
	}
	if len(email) > maxEmailLength || !v.emailRegex.MatchString(email) {
		return "", ReasonInvalidEmailSyntax
	}

	return email, ""
}

// validate classifies one candidate. It never panics past the row boundary.
func (v *Validator) validate(c candidate) outcome {
	email, reason := v.NormalizeEmail(c.email)
	if reason != "" {
		return outcome{rejected: &RejectedRow{
			Row:    c.row,
			Reason: reason,
			Email:  c.email,
			Values: c.cells,
		}}
	}

	return outcome{recipient: &Recipient{
		Email:      email,
		Name:       strings.TrimSpace(c.name),
		Row:        c.row,
		Attributes: c.attributes,
	}}
}
