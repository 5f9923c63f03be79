package ingest

import "strings"

// FieldMapping says which columns supply the email address and the display name.
// NameColumn is -1 when the upload has no name column.
type FieldMapping struct {
	EmailColumn int
	EmailHeader string
	NameColumn  int
	NameHeader  string
}

// FieldMapper locates the email and name columns in a header row
type FieldMapper struct {
	emailAliases map[string]struct{}
	nameAliases  map[string]struct{}
}

// NewFieldMapper creates a mapper for the given header alias sets
func NewFieldMapper(emailAliases, nameAliases []string) *FieldMapper {
	return &FieldMapper{
		emailAliases: aliasSet(emailAliases),
		nameAliases:  aliasSet(nameAliases),
	}
}

// Map resolves the header row. The email column is required and must be
// unique; the name column is optional and the leftmost match wins.
func (m *FieldMapper) Map(headers []string) (*FieldMapping, error) {
	mapping := &FieldMapping{EmailColumn: -1, NameColumn: -1}

	var emailColumns []int
	for i, header := range headers {
		key := normalizeHeader(header)
		if _, ok := m.emailAliases[key]; ok {
			emailColumns = append(emailColumns, i)
			continue
		}
		if _, ok := m.nameAliases[key]; ok && mapping.NameColumn < 0 {
			mapping.NameColumn = i
			mapping.NameHeader = header
		}
	}

	switch len(emailColumns) {
	case 0:
		return nil, missingEmailColumn()
	case 1:
		mapping.EmailColumn = emailColumns[0]
		mapping.EmailHeader = headers[emailColumns[0]]
	default:
		conflicting := make([]string, len(emailColumns))
		for i, col := range emailColumns {
			conflicting[i] = headers[col]
		}
		return nil, ambiguousEmailColumn(conflicting)
	}

	return mapping, nil
}

// candidate extracts the mapped fields of one row
func (m *FieldMapping) candidate(headers []string, row Row) candidate {
	c := candidate{row: row.Index, cells: row.Cells}
	if m.EmailColumn < len(row.Cells) {
		c.email = row.Cells[m.EmailColumn]
	}
	if m.NameColumn >= 0 && m.NameColumn < len(row.Cells) {
		c.name = row.Cells[m.NameColumn]
	}

	for i, value := range row.Cells {
		if i == m.EmailColumn || i == m.NameColumn || i >= len(headers) {
			continue
		}
		key := strings.TrimSpace(headers[i])
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if c.attributes == nil {
			c.attributes = make(map[string]string)
		}
		if _, exists := c.attributes[key]; !exists {
			c.attributes[key] = value
		}
	}

	return c
}

// normalizeHeader lowercases, trims and collapses inner whitespace
func normalizeHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), " ")
}

func aliasSet(aliases []string) map[string]struct{} {
	set := make(map[string]struct{}, len(aliases))
	for _, alias := range aliases {
		if key := normalizeHeader(alias); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}
