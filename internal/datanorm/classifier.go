package datanorm

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Classifier determines the file kind from the declared name/MIME type and
// checks that the content actually matches it.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

var extensionKinds = map[string]FileKind{
	".csv":   KindCSV,
	".txt":   KindCSV,
	".xlsx":  KindXLSX,
	".xls":   KindXLS,
	".vcf":   KindVCF,
	".vcard": KindVCF,
}

var mimeKinds = map[string]FileKind{
	"text/csv":                    KindCSV,
	"application/csv":             KindCSV,
	"text/comma-separated-values": KindCSV,
	"application/vnd.ms-excel":    KindXLS,
	"text/vcard":                  KindVCF,
	"text/x-vcard":                KindVCF,
	"text/directory":              KindVCF,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindXLSX,
}

// Declared returns the kind claimed by the filename extension, falling back
// to the declared MIME type.
func (c *Classifier) Declared(filename, contentType string) (FileKind, bool) {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return kind, true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	kind, ok := mimeKinds[ct]
	return kind, ok
}

// Classify returns the declared kind after sniffing the content. A mismatch
// between declaration and content yields ErrUnsupportedFormat.
func (c *Classifier) Classify(filename, contentType string, data []byte) (FileKind, error) {
	kind, ok := c.Declared(filename, contentType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	if len(data) == 0 {
		return kind, ErrEmptyFile
	}

	detected := mimetype.Detect(data)
	if !contentMatches(kind, detected, data) {
		return "", fmt.Errorf("%w: %q declared as %s but content is %s",
			ErrUnsupportedFormat, filename, kind, detected.String())
	}
	return kind, nil
}

func contentMatches(kind FileKind, detected *mimetype.MIME, data []byte) bool {
	switch kind {
	case KindXLSX:
		return descendsFrom(detected, "application/zip")
	case KindXLS:
		return descendsFrom(detected, "application/x-ole-storage") || detected.Is("application/vnd.ms-excel")
	case KindVCF:
		return descendsFrom(detected, "text/plain") && containsFold(data, "BEGIN:VCARD")
	case KindCSV:
		return descendsFrom(detected, "text/plain") && !startsWithVCard(data)
	}
	return false
}

func descendsFrom(m *mimetype.MIME, mime string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

func containsFold(data []byte, needle string) bool {
	return bytes.Contains(bytes.ToUpper(data), []byte(needle))
}

func startsWithVCard(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	return len(trimmed) >= len("BEGIN:VCARD") && bytes.EqualFold(trimmed[:len("BEGIN:VCARD")], []byte("BEGIN:VCARD"))
}
