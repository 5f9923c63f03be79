package models

import "time"

// TLS modes for outbound SMTP
const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

// SMTPSettings user-supplied outbound mail account
type SMTPSettings struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Host      string    `db:"host" json:"host"`
	Port      int       `db:"port" json:"port"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"` // Encrypted password
	FromEmail string    `db:"from_email" json:"from_email"`
	FromName  string    `db:"from_name" json:"from_name"`
	TLSMode   string    `db:"tls_mode" json:"tls_mode"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
