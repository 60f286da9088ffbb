package datanorm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMap(t *testing.T) {
	m := NewMapper(DefaultDictionary())

	tests := []struct {
		name    string
		headers []string
		want    ColumnMapping
	}{
		{
			name:    "english with german phone",
			headers: []string{"Name", "Email", "Telefon"},
			want:    ColumnMapping{FieldName: "Name", FieldEmail: "Email", FieldPhone: "Telefon"},
		},
		{
			name:    "german export",
			headers: []string{"Vorname", "Nachname", "E-Mail", "Handy", "Firma", "Bemerkung"},
			want: ColumnMapping{
				FieldFirstName: "Vorname", FieldLastName: "Nachname", FieldEmail: "E-Mail",
				FieldPhone: "Handy", FieldCompany: "Firma", FieldNotes: "Bemerkung",
			},
		},
		{
			name:    "separator variants and padding",
			headers: []string{" first_name ", "LAST-NAME", "e_mail", "\"WhatsApp\""},
			want: ColumnMapping{
				FieldFirstName: " first_name ", FieldLastName: "LAST-NAME",
				FieldEmail: "e_mail", FieldWhatsApp: "\"WhatsApp\"",
			},
		},
		{
			name:    "taken field falls through to next match",
			headers: []string{"First Name", "Vorname"},
			want:    ColumnMapping{FieldFirstName: "First Name", FieldName: "Vorname"},
		},
		{
			name:    "second header for a single-field keyword stays unmapped",
			headers: []string{"Email", "Mail"},
			want:    ColumnMapping{FieldEmail: "Email"},
		},
		{
			name:    "unknown headers",
			headers: []string{"Lieblingsfarbe", ""},
			want:    ColumnMapping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.AutoMap(tt.headers))
		})
	}
}

func TestAutoMap_Idempotent(t *testing.T) {
	m := NewMapper(DefaultDictionary())
	headers := []string{"Name", "Vorname", "Mail", "Mobil", "Instagram", "Website", "Score", "Letzter Kontakt"}

	first := m.AutoMap(headers)
	second := m.AutoMap(headers)
	assert.Equal(t, first, second)
	assert.Len(t, first, 8)
}

func TestAutoMap_NeverAssignsHeaderTwice(t *testing.T) {
	m := NewMapper(DefaultDictionary())
	mapping := m.AutoMap([]string{"Name", "Name", "Vorname", "Nachname"})

	seen := make(map[string]CanonicalField)
	for field, header := range mapping {
		prev, dup := seen[header]
		assert.False(t, dup, "header %q assigned to %s and %s", header, prev, field)
		seen[header] = field
	}
}

func TestColumnMapping_Assign(t *testing.T) {
	mapping := ColumnMapping{FieldName: "Name", FieldEmail: "Kontakt"}

	mapping.Assign(FieldNotes, "Kontakt")
	assert.Equal(t, ColumnMapping{FieldName: "Name", FieldNotes: "Kontakt"}, mapping)

	mapping.Assign(FieldNotes, "Name")
	assert.Equal(t, ColumnMapping{FieldNotes: "Name"}, mapping)

	mapping.Unassign(FieldNotes)
	assert.Empty(t, mapping.Fields())

	var empty ColumnMapping
	empty.Assign(FieldEmail, "Mail")
	h, ok := empty.Header(FieldEmail)
	assert.True(t, ok)
	assert.Equal(t, "Mail", h)
}

func TestColumnMapping_FieldsOrder(t *testing.T) {
	mapping := ColumnMapping{FieldScore: "S", FieldEmail: "E", FieldName: "N"}
	assert.Equal(t, []CanonicalField{FieldName, FieldEmail, FieldScore}, mapping.Fields())

	clone := mapping.Clone()
	clone.Unassign(FieldName)
	assert.Len(t, mapping, 3)
}

func TestParseDictionary(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		dict, err := ParseDictionary([]byte("fields:\n  - field: email\n    keywords: [courriel]\n"))
		require.NoError(t, err)
		mapping := NewMapper(dict).AutoMap([]string{"Courriel", "Email"})
		assert.Equal(t, ColumnMapping{FieldEmail: "Courriel"}, mapping)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseDictionary([]byte("fields:\n  - field: shoe_size\n    keywords: [size]\n"))
		assert.ErrorContains(t, err, "unknown field")
	})

	t.Run("duplicate field", func(t *testing.T) {
		_, err := ParseDictionary([]byte("fields:\n  - field: email\n    keywords: [a]\n  - field: email\n    keywords: [b]\n"))
		assert.ErrorContains(t, err, "listed twice")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseDictionary([]byte("fields: []\n"))
		assert.Error(t, err)
	})
}

func TestLoadDictionary(t *testing.T) {
	dict, err := LoadDictionary("")
	require.NoError(t, err)
	assert.Equal(t, FieldFirstName, dict[0].Field)

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  - field: phone\n    keywords: [numero]\n"), 0o600))
	dict, err = LoadDictionary(path)
	require.NoError(t, err)
	require.Len(t, dict, 1)
	assert.Equal(t, FieldPhone, dict[0].Field)

	_, err = LoadDictionary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
