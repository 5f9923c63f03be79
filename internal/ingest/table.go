package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Format of an uploaded table, derived from the filename suffix
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// Encoding records how the upload bytes were decoded
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF16       Encoding = "utf-16"
	EncodingWindows1252 Encoding = "windows-1252"
)

var formatsBySuffix = map[string]Format{
	".csv":  FormatCSV,
	".tsv":  FormatTSV,
	".tab":  FormatTSV,
	".xlsx": FormatXLSX,
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Row is one data row. Index is 1-based and excludes the header row.
type Row struct {
	Index int
	Cells []string
}

// Table is the parsed upload: a header row plus data rows aligned to it
type Table struct {
	Format   Format
	Encoding Encoding
	Headers  []string
	Rows     []Row
}

// DetectFormat resolves the table format from a filename suffix (case-insensitive)
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	format, ok := formatsBySuffix[ext]
	if !ok {
		return "", unsupportedFormat(filename)
	}
	return format, nil
}

// ParseTable turns raw upload bytes into a Table. The size limit is enforced
// before any decoding; a non-positive limit disables it.
func ParseTable(data []byte, filename string, limit int64) (*Table, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	if limit > 0 && int64(len(data)) > limit {
		return nil, sizeLimitExceeded(int64(len(data)), limit)
	}

	if format == FormatXLSX {
		return parseXLSX(data)
	}
	return parseDelimited(data, format)
}

// ReadLimited reads r to the end, failing with SizeLimitExceeded as soon as
// more than limit bytes are available. Nothing past limit+1 bytes is buffered.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, sizeLimitExceeded(-1, limit)
	}
	return data, nil
}

func parseDelimited(data []byte, format Format) (*Table, error) {
	text, encoding, err := decode(data)
	if err != nil {
		return nil, malformedInput(err)
	}

	table := &Table{Format: format, Encoding: encoding}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiterFor(format, text)
	// Every row must have as many fields as the header
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return table, nil
	}
	if err != nil {
		return nil, malformedInput(err)
	}
	table.Headers = header

	_, end := recordLines(reader, header)
	index := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformedInput(err)
		}

		// Empty lines dropped by the reader still count as row positions
		start, stop := recordLines(reader, record)
		index += start - end
		end = stop

		if blankRow(record) {
			continue
		}
		table.Rows = append(table.Rows, Row{Index: index, Cells: record})
	}

	return table, nil
}

// recordLines returns the first and last input line of the record just read
func recordLines(reader *csv.Reader, record []string) (int, int) {
	first, _ := reader.FieldPos(0)
	last, _ := reader.FieldPos(len(record) - 1)
	return first, last + strings.Count(record[len(record)-1], "\n")
}

// blankRow reports whether every cell of a row is empty or whitespace
func blankRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// delimiterFor picks the field separator. Spreadsheet exports in several
// locales write semicolon separated ".csv" files.
func delimiterFor(format Format, text string) rune {
	if format == FormatTSV {
		return '\t'
	}
	firstLine, _, _ := strings.Cut(text, "\n")
	if strings.Contains(firstLine, ";") && !strings.Contains(firstLine, ",") {
		return ';'
	}
	return ','
}

// decode tries UTF-16 (BOM only), then UTF-8, then falls back to Windows-1252
func decode(data []byte) (string, Encoding, error) {
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := decoder.Bytes(data)
		if err != nil {
			return "", EncodingUTF16, fmt.Errorf("invalid UTF-16 content: %w", err)
		}
		return string(out), EncodingUTF16, nil
	}

	data = bytes.TrimPrefix(data, bomUTF8)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", EncodingWindows1252, fmt.Errorf("undecodable character encoding: %w", err)
	}
	return string(out), EncodingWindows1252, nil
}

// parseXLSX reads the first worksheet of a workbook
func parseXLSX(data []byte) (*Table, error) {
	table := &Table{Format: FormatXLSX, Encoding: EncodingUTF8}

	if len(data) == 0 {
		return table, nil
	}

	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformedInput(err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return table, nil
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, malformedInput(err)
	}
	if len(rows) == 0 {
		return table, nil
	}

	table.Headers = rows[0]
	width := len(table.Headers)

	for i, cells := range rows[1:] {
		index := i + 1
		if len(cells) > width {
			for _, extra := range cells[width:] {
				if strings.TrimSpace(extra) != "" {
					return nil, malformedInput(fmt.Errorf("row %d has %d cells but the header has %d", index, len(cells), width))
				}
			}
			cells = cells[:width]
		}
		if blankRow(cells) {
			continue
		}
		// Workbooks omit trailing empty cells
		padded := make([]string, width)
		copy(padded, cells)
		table.Rows = append(table.Rows, Row{Index: index, Cells: padded})
	}

	return table, nil
}
