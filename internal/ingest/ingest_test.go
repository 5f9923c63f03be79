package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(DefaultConfig())
}

func requireStructural(t *testing.T, err error, kind error) *StructuralError {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)

	var serr *StructuralError
	require.True(t, errors.As(err, &serr))
	assert.NotEmpty(t, serr.Detail)
	assert.Equal(t, kind.Error(), serr.Code())
	return serr
}

func TestIngest_CountsAddUp(t *testing.T) {
	csv := strings.Join([]string{
		"email,name",
		"alice@example.com,Alice",
		"bob@example.com,Bob",
		"  ,Nobody",
		"not-an-email,Broken",
		"ALICE@example.com,Alice Again",
		"carol@example.org,",
	}, "\n")

	report, err := newTestPipeline().Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)

	assert.Equal(t, 6, report.TotalRows)
	assert.Equal(t, 3, report.AcceptedCount)
	assert.Equal(t, 2, report.RejectedCount)
	assert.Equal(t, 1, report.DuplicateCount)
	assert.Equal(t, report.TotalRows, report.AcceptedCount+report.RejectedCount+report.DuplicateCount)

	emails := make([]string, 0, len(report.Accepted))
	for _, r := range report.Accepted {
		emails = append(emails, r.Email)
	}
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.org"}, emails)
	assert.Equal(t, FormatCSV, report.Format)
	assert.Equal(t, EncodingUTF8, report.Encoding)
	assert.Equal(t, "email", report.EmailColumn)
	assert.Equal(t, "name", report.NameColumn)
	assert.Equal(t, []string{"email", "name"}, report.Columns)
}

func TestIngest_HeaderCaseInsensitive(t *testing.T) {
	rows := "\nalice@example.com,Alice\nbad,Bad\nalice@example.com,Dup\n"

	var reports []*Report
	for _, header := range []string{"Email", "EMAIL", "email", "  eMail  "} {
		report, err := newTestPipeline().Ingest([]byte(header+",name"+rows), "list.csv")
		require.NoError(t, err, header)
		reports = append(reports, report)
	}

	for _, report := range reports[1:] {
		assert.Equal(t, reports[0].Accepted, report.Accepted)
		assert.Equal(t, reports[0].Rejected, report.Rejected)
		assert.Equal(t, reports[0].Duplicates, report.Duplicates)
		assert.Equal(t, reports[0].TotalRows, report.TotalRows)
	}
}

func TestIngest_DuplicateKeepsFirstOccurrence(t *testing.T) {
	csv := "email,name\nA@Example.com,First\na@example.com,Second\n"

	report, err := newTestPipeline().Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)

	require.Len(t, report.Accepted, 1)
	assert.Equal(t, Recipient{Email: "a@example.com", Name: "First", Row: 1}, report.Accepted[0])
	assert.Equal(t, []DuplicateRow{{Row: 2, Email: "a@example.com", FirstRow: 1}}, report.Duplicates)
	assert.Empty(t, report.Rejected)
}

func TestIngest_RowRejections(t *testing.T) {
	csv := "email,name\n\"  \",Blank\nnot-an-email,Typo\n"

	report, err := newTestPipeline().Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)

	require.Len(t, report.Rejected, 2)
	assert.Equal(t, RejectedRow{Row: 1, Reason: ReasonEmptyEmail, Email: "  ", Values: []string{"  ", "Blank"}}, report.Rejected[0])
	assert.Equal(t, RejectedRow{Row: 2, Reason: ReasonInvalidEmailSyntax, Email: "not-an-email", Values: []string{"not-an-email", "Typo"}}, report.Rejected[1])
	assert.Empty(t, report.Accepted)

	embedded := []struct {
		name  string
		email string
	}{
		{"vertical tab", "a\vb@example.com"},
		{"next line", "a\u0085b@example.com"},
		{"nul", "a\x00b@example.com"},
		{"zero width space", "a\u200bb@example.com"},
		{"no-break space in domain", "a@exa\u00a0mple.com"},
		{"line separator", "a\u2028b@example.com"},
	}
	for _, tt := range embedded {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestPipeline().Ingest([]byte("email\n"+tt.email+"\n"), "list.csv")
			require.NoError(t, err)
			require.Len(t, report.Rejected, 1)
			assert.Equal(t, ReasonInvalidEmailSyntax, report.Rejected[0].Reason)
			assert.Empty(t, report.Accepted)
		})
	}
}

func TestValidator_NormalizeEmail(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		raw    string
		want   string
		reason RejectReason
	}{
		{"  Ann@Example.COM ", "ann@example.com", ""},
		{"first.last+tag@mail.example.co.uk", "first.last+tag@mail.example.co.uk", ""},
		{"\t\v ", "", ReasonEmptyEmail},
		{"a\vb@example.com", "", ReasonInvalidEmailSyntax},
		{"a\u0085b@example.com", "", ReasonInvalidEmailSyntax},
		{"a\x00b@example.com", "", ReasonInvalidEmailSyntax},
		{"a\u200bb@example.com", "", ReasonInvalidEmailSyntax},
		{"a@b@example.com", "", ReasonInvalidEmailSyntax},
		{"a@example..com", "", ReasonInvalidEmailSyntax},
		{"a@example", "", ReasonInvalidEmailSyntax},
	}

	for _, tt := range tests {
		got, reason := v.NormalizeEmail(tt.raw)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
		assert.Equal(t, tt.reason, reason, "raw %q", tt.raw)
	}
}

func TestIngest_AmbiguousEmailColumn(t *testing.T) {
	csv := "Email,Email Address\na@example.com,b@example.com\n"

	report, err := newTestPipeline().Ingest([]byte(csv), "list.csv")
	assert.Nil(t, report)

	serr := requireStructural(t, err, ErrAmbiguousEmailColumn)
	assert.Contains(t, serr.Detail, `"Email"`)
	assert.Contains(t, serr.Detail, `"Email Address"`)
}

func TestIngest_MissingEmailColumn(t *testing.T) {
	report, err := newTestPipeline().Ingest([]byte("name,company\nAlice,Acme\n"), "list.csv")
	assert.Nil(t, report)

	serr := requireStructural(t, err, ErrMissingEmailColumn)
	assert.Equal(t, "File must contain an 'email' column.", serr.Detail)
}

func TestIngest_HeaderOnly(t *testing.T) {
	report, err := newTestPipeline().Ingest([]byte("email,name\n"), "list.csv")
	require.NoError(t, err)

	assert.Zero(t, report.TotalRows)
	assert.Zero(t, report.AcceptedCount)
	assert.Zero(t, report.RejectedCount)
	assert.Zero(t, report.DuplicateCount)
	assert.Empty(t, report.Accepted)
}

func TestIngest_EmptyUpload(t *testing.T) {
	report, err := newTestPipeline().Ingest(nil, "list.csv")
	require.NoError(t, err)
	assert.Zero(t, report.TotalRows)
	assert.Empty(t, report.EmailColumn)
}

func TestIngest_SizeLimitCheckedBeforeParsing(t *testing.T) {
	// Unterminated quote: would be MalformedInput if it were parsed
	data := []byte("email\n\"" + strings.Repeat("x", 200))

	_, err := newTestPipeline().Ingest(data, "list.csv", WithSizeLimit(64))
	serr := requireStructural(t, err, ErrSizeLimitExceeded)
	assert.Contains(t, serr.Detail, "64 B")

	p := NewPipeline(Config{MaxUploadSize: 64})
	_, err = p.Ingest(data, "list.csv")
	requireStructural(t, err, ErrSizeLimitExceeded)

	// Zero or negative per-call limits never lift the configured one
	for _, limit := range []int64{0, -1} {
		_, err = p.Ingest(data, "list.csv", WithSizeLimit(limit))
		requireStructural(t, err, ErrSizeLimitExceeded)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	csv := "Email,Name,Company\nb@example.com,Bob,Acme\nbad,X,Y\nB@example.com,Bobby,Other\nc@example.com,,Corp\n"
	p := newTestPipeline()

	first, err := p.Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)
	second, err := p.Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	for _, name := range []string{"list.pdf", "list", "list.csv.exe", ""} {
		_, err := newTestPipeline().Ingest([]byte("email\na@example.com\n"), name)
		requireStructural(t, err, ErrUnsupportedFormat)
	}

	_, err := newTestPipeline().Ingest([]byte("email\na@example.com\n"), "LIST.CSV")
	assert.NoError(t, err)
}

func TestIngest_MalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unterminated quote", "email,name\n\"a@example.com,Alice\n"},
		{"inconsistent columns", "email,name\na@example.com,Alice,Extra\n"},
		{"bare quote", "email,name\na\"b@example.com,Alice\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestPipeline().Ingest([]byte(tt.data), "list.csv")
			assert.Nil(t, report)
			requireStructural(t, err, ErrMalformedInput)
		})
	}
}

func TestIngest_Latin1Fallback(t *testing.T) {
	data := []byte("email,name\njose@example.com,Jos\xe9\n")

	report, err := newTestPipeline().Ingest(data, "list.csv")
	require.NoError(t, err)

	assert.Equal(t, EncodingWindows1252, report.Encoding)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, "José", report.Accepted[0].Name)
}

func TestIngest_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Email,Name\nzoe@example.com,Zoë\n")...)

	report, err := newTestPipeline().Ingest(data, "list.csv")
	require.NoError(t, err)

	assert.Equal(t, EncodingUTF8, report.Encoding)
	assert.Equal(t, "Email", report.EmailColumn)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, "Zoë", report.Accepted[0].Name)
}

func TestIngest_UTF16WithBOM(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := encoder.String("email\tname\r\nann@example.com\tAnn\r\n")
	require.NoError(t, err)

	report, err := newTestPipeline().Ingest([]byte(data), "export.tsv")
	require.NoError(t, err)

	assert.Equal(t, EncodingUTF16, report.Encoding)
	assert.Equal(t, FormatTSV, report.Format)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, "ann@example.com", report.Accepted[0].Email)
}

func TestIngest_SemicolonSeparatedCSV(t *testing.T) {
	report, err := newTestPipeline().Ingest([]byte("E-Mail;Full Name\nann@example.com;Ann Lee\n"), "list.csv")
	require.NoError(t, err)

	require.Len(t, report.Accepted, 1)
	assert.Equal(t, "Ann Lee", report.Accepted[0].Name)
	assert.Equal(t, "Full Name", report.NameColumn)
}

func TestIngest_XLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"Name", "Email", "City"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"Ann", "Ann@Example.com", "Oslo"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]interface{}{"Ben", "ben@example"}))

	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	report, err := newTestPipeline().Ingest(buf.Bytes(), "contacts.XLSX")
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, report.Format)
	assert.Equal(t, 2, report.TotalRows)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, Recipient{Email: "ann@example.com", Name: "Ann", Row: 1, Attributes: map[string]string{"City": "Oslo"}}, report.Accepted[0])
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, ReasonInvalidEmailSyntax, report.Rejected[0].Reason)
	assert.Equal(t, []string{"Ben", "ben@example", ""}, report.Rejected[0].Values)
}

func TestIngest_BlankLinesKeepRowPositions(t *testing.T) {
	csv := "email,name\na@example.com,Ann\n\nb@example.com,Bob\n\"c@example.com\",\"Line1\nLine2\"\n , \nd@example.com,Dee\n"

	report, err := newTestPipeline().Ingest([]byte(csv), "list.csv")
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRows)
	assert.Empty(t, report.Rejected)
	rows := make([]int, 0, len(report.Accepted))
	for _, r := range report.Accepted {
		rows = append(rows, r.Row)
	}
	assert.Equal(t, []int{1, 3, 4, 6}, rows)

	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"Email"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"a@example.com"}))
	require.NoError(t, book.SetSheetRow(sheet, "A4", &[]interface{}{"b@example.com"}))

	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	report, err = newTestPipeline().Ingest(buf.Bytes(), "list.xlsx")
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalRows)
	assert.Empty(t, report.Rejected)
	require.Len(t, report.Accepted, 2)
	assert.Equal(t, 1, report.Accepted[0].Row)
	assert.Equal(t, 3, report.Accepted[1].Row)
}

func TestIngest_XLSXGarbage(t *testing.T) {
	_, err := newTestPipeline().Ingest([]byte("definitely not a zip archive"), "contacts.xlsx")
	requireStructural(t, err, ErrMalformedInput)
}

func TestIngest_NameColumn(t *testing.T) {
	t.Run("leftmost match wins", func(t *testing.T) {
		report, err := newTestPipeline().Ingest([]byte("Contact Name,email,Name\nLeft,a@example.com,Right\n"), "list.csv")
		require.NoError(t, err)
		assert.Equal(t, "Contact Name", report.NameColumn)
		assert.Equal(t, "Left", report.Accepted[0].Name)
		assert.Equal(t, map[string]string{"Name": "Right"}, report.Accepted[0].Attributes)
	})

	t.Run("absent is fine", func(t *testing.T) {
		report, err := newTestPipeline().Ingest([]byte("email\na@example.com\n"), "list.csv")
		require.NoError(t, err)
		assert.Empty(t, report.NameColumn)
		assert.Empty(t, report.Accepted[0].Name)
	})

	t.Run("blank name is absent", func(t *testing.T) {
		report, err := newTestPipeline().Ingest([]byte("email,name\na@example.com,\"   \"\n"), "list.csv")
		require.NoError(t, err)
		assert.Empty(t, report.Accepted[0].Name)
	})
}

func TestIngest_CustomAliases(t *testing.T) {
	p := NewPipeline(Config{EmailAliases: []string{"Mail"}, NameAliases: []string{"Who"}})

	report, err := p.Ingest([]byte("who,MAIL\nAnn,ann@example.com\n"), "list.csv")
	require.NoError(t, err)
	assert.Equal(t, "Ann", report.Accepted[0].Name)

	_, err = p.Ingest([]byte("email\nann@example.com\n"), "list.csv")
	requireStructural(t, err, ErrMissingEmailColumn)
}

func TestIngest_ParallelValidationMatchesSequential(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email,name\n")
	for i := 0; i < 5000; i++ {
		switch {
		case i%97 == 0:
			sb.WriteString("broken,x\n")
		case i%13 == 0:
			sb.WriteString("USER0@example.com,dup\n")
		default:
			fmt.Fprintf(&sb, "user%d@example.com,User %d\n", i, i)
		}
	}
	data := []byte(sb.String())

	sequential, err := NewPipeline(Config{Workers: 1}).Ingest(data, "big.csv")
	require.NoError(t, err)
	parallel, err := NewPipeline(Config{Workers: 8}).Ingest(data, "big.csv")
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)
	assert.Equal(t, 5000, parallel.TotalRows)
	assert.Equal(t, parallel.TotalRows, parallel.AcceptedCount+parallel.RejectedCount+parallel.DuplicateCount)
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("email\n"), 6)
	require.NoError(t, err)
	assert.Equal(t, "email\n", string(data))

	_, err = ReadLimited(strings.NewReader("email\nx"), 6)
	requireStructural(t, err, ErrSizeLimitExceeded)
}
