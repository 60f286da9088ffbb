package datanorm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// CanonicalField is a lead attribute a source column can be mapped onto.
type CanonicalField string

const (
	FieldName          CanonicalField = "name"
	FieldFirstName     CanonicalField = "first_name"
	FieldLastName      CanonicalField = "last_name"
	FieldEmail         CanonicalField = "email"
	FieldPhone         CanonicalField = "phone"
	FieldWhatsApp      CanonicalField = "whatsapp"
	FieldCompany       CanonicalField = "company"
	FieldPosition      CanonicalField = "position"
	FieldInstagram     CanonicalField = "instagram"
	FieldFacebook      CanonicalField = "facebook"
	FieldLinkedIn      CanonicalField = "linkedin"
	FieldTwitter       CanonicalField = "twitter"
	FieldTikTok        CanonicalField = "tiktok"
	FieldWebsite       CanonicalField = "website"
	FieldStatus        CanonicalField = "status"
	FieldNotes         CanonicalField = "notes"
	FieldLastContactAt CanonicalField = "last_contact_at"
	FieldScore         CanonicalField = "score"
)

// CanonicalFields lists every mappable field in display order.
var CanonicalFields = []CanonicalField{
	FieldName, FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldWhatsApp,
	FieldCompany, FieldPosition, FieldInstagram, FieldFacebook, FieldLinkedIn,
	FieldTwitter, FieldTikTok, FieldWebsite, FieldStatus, FieldNotes,
	FieldLastContactAt, FieldScore,
}

// IsCanonicalField reports whether f names a known field.
func IsCanonicalField(f CanonicalField) bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

//go:embed keywords.yaml
var defaultKeywords []byte

// FieldKeywords is one dictionary entry: the header spellings that identify a field.
type FieldKeywords struct {
	Field    CanonicalField `yaml:"field" json:"field"`
	Keywords []string       `yaml:"keywords" json:"keywords"`
}

// Dictionary is the ordered keyword table used by AutoMap. Entry order is the
// tie-break when a header matches more than one field.
type Dictionary []FieldKeywords

type dictionaryFile struct {
	Fields Dictionary `yaml:"fields"`
}

// DefaultDictionary returns the embedded German/English dictionary.
func DefaultDictionary() Dictionary {
	dict, err := ParseDictionary(defaultKeywords)
	if err != nil {
		panic(fmt.Sprintf("datanorm: embedded keywords.yaml: %v", err))
	}
	return dict
}

// ParseDictionary decodes a keywords YAML document.
func ParseDictionary(data []byte) (Dictionary, error) {
	var file dictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, fmt.Errorf("parse keywords: no fields defined")
	}

	seen := make(map[CanonicalField]bool, len(file.Fields))
	for _, entry := range file.Fields {
		if !IsCanonicalField(entry.Field) {
			return nil, fmt.Errorf("parse keywords: unknown field %q", entry.Field)
		}
		if seen[entry.Field] {
			return nil, fmt.Errorf("parse keywords: field %q listed twice", entry.Field)
		}
		seen[entry.Field] = true
	}
	return file.Fields, nil
}

// LoadDictionary reads a keywords file, or returns the embedded dictionary
// when path is empty.
func LoadDictionary(path string) (Dictionary, error) {
	if path == "" {
		return DefaultDictionary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return ParseDictionary(data)
}

// ColumnMapping maps a canonical field to the source header it reads from.
// A field absent from the map is unmapped.
type ColumnMapping map[CanonicalField]string

// Header returns the header assigned to f.
func (m ColumnMapping) Header(f CanonicalField) (string, bool) {
	h, ok := m[f]
	return h, ok
}

// Assign points f at header. Any other field currently pointing at the same
// header is unassigned, so the last assignment wins.
func (m *ColumnMapping) Assign(f CanonicalField, header string) {
	if *m == nil {
		*m = make(ColumnMapping)
	}
	for field, h := range *m {
		if h == header && field != f {
			delete(*m, field)
		}
	}
	(*m)[f] = header
}

// Unassign clears the mapping for f.
func (m ColumnMapping) Unassign(f CanonicalField) {
	delete(m, f)
}

// Fields returns the mapped fields in canonical order.
func (m ColumnMapping) Fields() []CanonicalField {
	var out []CanonicalField
	for _, f := range CanonicalFields {
		if _, ok := m[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for f, h := range m {
		out[f] = h
	}
	return out
}

// Mapper infers a ColumnMapping from header names. It is safe for
// concurrent use.
type Mapper struct {
	dict     Dictionary
	keywords []map[string]bool // parallel to dict, normalized keywords
}

func NewMapper(dict Dictionary) *Mapper {
	m := &Mapper{dict: dict, keywords: make([]map[string]bool, len(dict))}
	for i, entry := range dict {
		set := make(map[string]bool, len(entry.Keywords))
		for _, kw := range entry.Keywords {
			for _, variant := range headerVariants(kw) {
				set[variant] = true
			}
		}
		m.keywords[i] = set
	}
	return m
}

// Dictionary returns the keyword table the mapper was built with.
func (m *Mapper) Dictionary() Dictionary {
	return m.dict
}

// AutoMap assigns each header to the first dictionary field it matches that
// no earlier header has claimed. Headers matching nothing stay unmapped and a
// header is never given two fields.
func (m *Mapper) AutoMap(headers []string) ColumnMapping {
	mapping := make(ColumnMapping)
	taken := make(map[CanonicalField]bool)
	usedHeader := make(map[string]bool)

	for _, header := range headers {
		if strings.TrimSpace(header) == "" || usedHeader[header] {
			continue
		}
		variants := headerVariants(header)
		for i, entry := range m.dict {
			if taken[entry.Field] || !m.matches(i, variants) {
				continue
			}
			mapping[entry.Field] = header
			taken[entry.Field] = true
			usedHeader[header] = true
			break
		}
	}
	return mapping
}

func (m *Mapper) matches(entry int, variants []string) bool {
	for _, v := range variants {
		if m.keywords[entry][v] {
			return true
		}
	}
	return false
}

// headerVariants returns the lookup keys for a header: the folded header
// itself and, when it differs, the form with "_" and "-" read as spaces.
func headerVariants(header string) []string {
	key := foldHeader(header)
	spaced := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(key)), " ")
	if spaced == key || spaced == "" {
		return []string{key}
	}
	return []string{key, spaced}
}

func foldHeader(header string) string {
	h := norm.NFC.String(strings.ToLower(strings.TrimSpace(header)))
	return strings.TrimSpace(strings.Trim(h, "\"'"))
}
