package ingest

import "strings"

// DuplicateRow is a valid row whose address already appeared earlier in the upload
type DuplicateRow struct {
	Row      int    `json:"row"`
	Email    string `json:"email"`
	FirstRow int    `json:"first_row"`
}

// Report is the result of one ingestion call.
// AcceptedCount + RejectedCount + DuplicateCount == TotalRows.
type Report struct {
	Format         Format         `json:"format"`
	Encoding       Encoding       `json:"encoding"`
	EmailColumn    string         `json:"email_column,omitempty"`
	NameColumn     string         `json:"name_column,omitempty"`
	Columns        []string       `json:"columns"`
	TotalRows      int            `json:"total_rows"`
	AcceptedCount  int            `json:"accepted_count"`
	RejectedCount  int            `json:"rejected_count"`
	DuplicateCount int            `json:"duplicate_count"`
	Accepted       []Recipient    `json:"accepted"`
	Rejected       []RejectedRow  `json:"rejected"`
	Duplicates     []DuplicateRow `json:"duplicates"`
}

func newReport(table *Table) *Report {
	columns := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		columns[i] = strings.TrimSpace(h)
	}

	return &Report{
		Format:     table.Format,
		Encoding:   table.Encoding,
		Columns:    columns,
		Accepted:   []Recipient{},
		Rejected:   []RejectedRow{},
		Duplicates: []DuplicateRow{},
	}
}

// assemble dedupes the ordered outcomes into the report. This must stay a
// single pass in row order: the first occurrence of an address wins.
func (r *Report) assemble(outcomes []outcome) {
	seen := make(map[string]int, len(outcomes))

	for _, o := range outcomes {
		if o.rejected != nil {
			r.Rejected = append(r.Rejected, *o.rejected)
			continue
		}

		recipient := o.recipient
		if firstRow, dup := seen[recipient.Email]; dup {
			r.Duplicates = append(r.Duplicates, DuplicateRow{
				Row:      recipient.Row,
				Email:    recipient.Email,
				FirstRow: firstRow,
			})
			continue
		}

		seen[recipient.Email] = recipient.Row
		r.Accepted = append(r.Accepted, *recipient)
	}

	r.TotalRows = len(outcomes)
	r.AcceptedCount = len(r.Accepted)
	r.RejectedCount = len(r.Rejected)
	r.DuplicateCount = len(r.Duplicates)
}
