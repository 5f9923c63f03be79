package models

// Stats aggregated counters for one user
type Stats struct {
	Campaigns  int `db:"campaigns" json:"campaigns"`
	Drafts     int `db:"drafts" json:"drafts"`
	Recipients int `db:"recipients" json:"recipients"`
	Pending    int `db:"pending" json:"pending"`
	Sent       int `db:"sent" json:"sent"`
	Failed     int `db:"failed" json:"failed"`
}
