package models

import "time"

// Template is a reusable subject + HTML body
type Template struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	BodyHTML  string    `db:"body_html" json:"body_html"`
	BodyText  string    `db:"body_text" json:"body_text"` // Derived from BodyHTML
	Variables []string  `db:"-" json:"variables"`         // {{placeholders}} in subject and body
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
