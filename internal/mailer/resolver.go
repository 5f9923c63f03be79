package mailer

import (
	"fmt"
	"strings"

	"github.com/mixelka/novamailer/pkg/models"
)

// ServerSuggestion is a likely SMTP submission endpoint for an address
type ServerSuggestion struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	TLSMode string `json:"tls_mode"`
	Known   bool   `json:"known"` // false when guessed from the domain
}

// Submission servers of popular providers
var knownSMTPServers = map[string]ServerSuggestion{
	"gmail.com":      {Host: "smtp.gmail.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"googlemail.com": {Host: "smtp.gmail.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"outlook.com":    {Host: "smtp.office365.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"hotmail.com":    {Host: "smtp.office365.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"live.com":       {Host: "smtp.office365.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"msn.com":        {Host: "smtp.office365.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"yahoo.com":      {Host: "smtp.mail.yahoo.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"yahoo.co.uk":    {Host: "smtp.mail.yahoo.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"icloud.com":     {Host: "smtp.mail.me.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"me.com":         {Host: "smtp.mail.me.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"mac.com":        {Host: "smtp.mail.me.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"aol.com":        {Host: "smtp.aol.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"zoho.com":       {Host: "smtp.zoho.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"fastmail.com":   {Host: "smtp.fastmail.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"gmx.com":        {Host: "mail.gmx.com", Port: 587, TLSMode: models.TLSModeStartTLS},
	"gmx.de":         {Host: "mail.gmx.net", Port: 587, TLSMode: models.TLSModeStartTLS},
	"web.de":         {Host: "smtp.web.de", Port: 587, TLSMode: models.TLSModeStartTLS},
	"yandex.ru":      {Host: "smtp.yandex.ru", Port: 465, TLSMode: models.TLSModeImplicit},
	"yandex.com":     {Host: "smtp.yandex.com", Port: 465, TLSMode: models.TLSModeImplicit},
	"mail.ru":        {Host: "smtp.mail.ru", Port: 465, TLSMode: models.TLSModeImplicit},
	"proton.me":      {Host: "127.0.0.1", Port: 1025, TLSMode: models.TLSModeStartTLS}, // Proton Mail Bridge
	"protonmail.com": {Host: "127.0.0.1", Port: 1025, TLSMode: models.TLSModeStartTLS},
}

// SuggestServer guesses the SMTP server for a sender address. Unknown
// domains get smtp.<domain> on the submission port.
func SuggestServer(email string) (ServerSuggestion, error) {
	domain := DomainFromEmail(email)
	if domain == "" {
		return ServerSuggestion{}, fmt.Errorf("invalid email format")
	}

	if s, ok := knownSMTPServers[domain]; ok {
		s.Known = true
		return s, nil
	}

	return ServerSuggestion{Host: "smtp." + domain, Port: 587, TLSMode: models.TLSModeStartTLS}, nil
}

// DomainFromEmail extracts the lowercased domain of an address
func DomainFromEmail(email string) string {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
