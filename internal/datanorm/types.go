package datanorm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the source readers.
var (
	// ErrUnsupportedFormat is returned when the declared file kind is unknown
	// or the content does not match it. Fatal to the import session.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyFile is returned when no data rows (or no vCard blocks) remain
	// after header extraction. Fatal to the import session.
	ErrEmptyFile = errors.New("file contains no data rows")

	// ErrMalformedRecord marks a single record that could not be parsed. It is
	// recovered locally: the record is dropped and counted, the file proceeds.
	ErrMalformedRecord = errors.New("malformed record")
)

// FileKind is the declared type of an uploaded file.
type FileKind string

const (
	KindCSV  FileKind = "csv"
	KindXLSX FileKind = "xlsx"
	KindXLS  FileKind = "xls"
	KindVCF  FileKind = "vcf"
)

// IsSpreadsheet reports whether the kind decodes into a RawTable.
func (k FileKind) IsSpreadsheet() bool {
	return k == KindCSV || k == KindXLSX || k == KindXLS
}

// RawTable is an ordered table of raw cells. Header is row 0 of the source;
// Rows holds the data rows. Every row has exactly len(Header) cells.
type RawTable struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	// Lines holds the 1-based source line (or sheet row) of each data row.
	Lines []int `json:"lines"`
}

// RowIndex returns the source line of data row i, for error reporting.
func (t *RawTable) RowIndex(i int) int {
	if i >= 0 && i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// ParsedVCard is one decoded BEGIN:VCARD...END:VCARD block.
type ParsedVCard struct {
	Index      int      `json:"index"`
	Line       int      `json:"line,omitempty"` // source line of BEGIN:VCARD
	FN         string   `json:"fn,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Emails     []string `json:"emails,omitempty"`
	Tels       []string `json:"tels,omitempty"`
	WhatsApp   string   `json:"whatsapp,omitempty"`
	Org        string   `json:"org,omitempty"`
	Title      string   `json:"title,omitempty"`
	Note       string   `json:"note,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	// Socials maps a network name (instagram, facebook, ...) to a handle or URL
	// taken from X-SOCIALPROFILE properties.
	Socials map[string]string `json:"socials,omitempty"`
}

// RowIndex is the position reported for the card in per-record errors: its
// source line when known, its 1-based position otherwise.
func (c ParsedVCard) RowIndex() int {
	if c.Line > 0 {
		return c.Line
	}
	return c.Index + 1
}

// Source is the decoded content of one uploaded file: either a table or a
// list of vCard blocks, never both.
type Source struct {
	Kind     FileKind      `json:"kind"`
	Filename string        `json:"filename"`
	Table    *RawTable     `json:"table,omitempty"`
	Cards    []ParsedVCard `json:"cards,omitempty"`

	// Warnings lists recovered problems (skipped vCard blocks, unreadable rows).
	Warnings       []string `json:"warnings,omitempty"`
	MalformedCount int      `json:"malformed_count"`
}

// RecordCount returns the number of data rows or vCard blocks.
func (s *Source) RecordCount() int {
	if s.Table != nil {
		return len(s.Table.Rows)
	}
	return len(s.Cards)
}

func (s *Source) warnMalformed(format string, args ...interface{}) {
	s.MalformedCount++
	s.Warnings = append(s.Warnings, fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...)).Error())
}
