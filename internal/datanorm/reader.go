package datanorm

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/ignite/lead-import/internal/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SourceReader decodes uploaded bytes into a RawTable or a list of vCards.
// It holds no state between calls and performs no I/O.
type SourceReader struct {
	classifier *Classifier
}

func NewSourceReader() *SourceReader {
	return &SourceReader{classifier: NewClassifier()}
}

// Read decodes data using only the filename extension as the declared kind.
func Read(data []byte, filename string) (*Source, error) {
	return NewSourceReader().Read(filename, "", data)
}

// Read classifies and decodes one uploaded file. It fails with
// ErrUnsupportedFormat when the content does not match the declared kind and
// with ErrEmptyFile when no data rows remain after header extraction.
func (r *SourceReader) Read(filename, contentType string, data []byte) (*Source, error) {
	kind, err := r.classifier.Classify(filename, contentType, data)
	if err != nil {
		return nil, err
	}

	src := &Source{Kind: kind, Filename: filename}
	switch kind {
	case KindCSV:
		src.Table, err = readCSV(data, src)
	case KindXLSX:
		src.Table, err = readXLSX(data)
	case KindXLS:
		src.Table, err = readXLS(data)
	case KindVCF:
		src.Cards, err = readVCards(data, src)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("source decoded",
		"file", filename, "kind", kind,
		"records", src.RecordCount(), "malformed", src.MalformedCount)
	return src, nil
}

// readCSV parses comma- or semicolon-delimited text. Quoted cells have their
// quotes removed by the csv reader; rows that are blank in every cell never
// enter the table.
func readCSV(data []byte, src *Source) (*RawTable, error) {
	data = decodeText(data, src)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	var lines []int
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				src.warnMalformed("line %d: %v", perr.Line, perr.Err)
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, row)
		lines = append(lines, line)
	}
	return buildTable(records, lines)
}

// decodeText strips a UTF-8 BOM and returns data as UTF-8. Excel on Windows
// writes CSV in Windows-1252 by default, so text that is not valid UTF-8 is
// read in that code page.
func decodeText(data []byte, src *Source) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		logger.Warn("windows-1252 decode failed", "file", src.Filename, "error", err)
		return data
	}
	src.Warnings = append(src.Warnings, "file is not UTF-8, read as Windows-1252")
	return decoded
}

// detectDelimiter picks ';' over ',' when the header line carries more
// semicolons than commas outside quotes (German Excel exports).
func detectDelimiter(data []byte) rune {
	header := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		header = data[:idx]
	}
	commas, semicolons := 0, 0
	inQuotes := false
	for _, b := range header {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semicolons++
			}
		}
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

// buildTable turns raw records (header first) into a RawTable. Blank rows are
// dropped, short rows padded with "", and non-blank overflow cells get a
// generated header so nothing is lost.
func buildTable(records [][]string, lines []int) (*RawTable, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	width := len(header)
	var rows [][]string
	var rowLines []int
	for i, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		if n := usedWidth(rec); n > width {
			width = n
		}
		rows = append(rows, rec)
		if i+1 < len(lines) {
			rowLines = append(rowLines, lines[i+1])
		} else {
			rowLines = append(rowLines, i+2)
		}
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	for len(header) < width {
		header = append(header, fmt.Sprintf("column_%d", len(header)+1))
	}
	for i, rec := range rows {
		rows[i] = fitRow(rec, width)
	}
	return &RawTable{Header: header, Rows: rows, Lines: rowLines}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// usedWidth is the row length ignoring trailing blank cells.
func usedWidth(row []string) int {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return n
}

func fitRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
