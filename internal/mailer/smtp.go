package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/mixelka/novamailer/pkg/models"
)

// Account holds the decrypted credentials of an SMTP server
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string
}

// AccountFromSettings builds an Account from stored settings and a
// decrypted password
func AccountFromSettings(s *models.SMTPSettings, password string) Account {
	return Account{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: password,
		TLSMode:  s.TLSMode,
	}
}

func (a Account) addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Sender delivers a composed message to one recipient
type Sender interface {
	Send(ctx context.Context, account Account, from, to string, msg []byte) error
	Verify(ctx context.Context, account Account) error
}

// SMTPSender talks to the user's SMTP server
type SMTPSender struct {
	dialTimeout time.Duration
	tlsConfig   *tls.Config
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(dialTimeout time.Duration) *SMTPSender {
	return &SMTPSender{dialTimeout: dialTimeout}
}

// Verify connects and authenticates without sending anything
func (s *SMTPSender) Verify(ctx context.Context, account Account) error {
	client, err := s.dial(ctx, account)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Quit()
}

// Send performs one MAIL/RCPT/DATA transaction
func (s *SMTPSender) Send(ctx context.Context, account Account, from, to string, msg []byte) error {
	client, err := s.dial(ctx, account)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context, account Account) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.dialTimeout}
	tlsCfg := s.tlsFor(account.Host)

	var conn net.Conn
	var err error
	if account.TLSMode == models.TLSModeImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", account.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", account.addr())
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", account.addr(), err)
	}

	// Bound the whole session by the context deadline, if any
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, account.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}

	if account.TLSMode == models.TLSModeStartTLS {
		ok, _ := client.Extension("STARTTLS")
		if !ok {
			client.Close()
			return nil, fmt.Errorf("server %s does not offer STARTTLS", account.Host)
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if account.Username != "" {
		if err := client.Auth(&saslAuth{client: sasl.NewPlainClient("", account.Username, account.Password)}); err != nil {
			client.Close()
			return nil, fmt.Errorf("AUTH: %w", err)
		}
	}

	return client, nil
}

func (s *SMTPSender) tlsFor(host string) *tls.Config {
	if s.tlsConfig != nil {
		cfg := s.tlsConfig.Clone()
		cfg.ServerName = host
		return cfg
	}
	return &tls.Config{ServerName: host}
}

// saslAuth adapts a SASL client to smtp.Auth. Unlike smtp.PlainAuth it does
// not refuse plaintext connections; the TLS mode is the user's choice.
type saslAuth struct {
	client sasl.Client
}

func (a *saslAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a *saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}
