package datanorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestClassifier_Declared(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name        string
		filename    string
		contentType string
		want        FileKind
		ok          bool
	}{
		{"csv extension", "leads.csv", "", KindCSV, true},
		{"upper case extension", "LEADS.CSV", "", KindCSV, true},
		{"xlsx extension", "kontakte.xlsx", "", KindXLSX, true},
		{"xls extension", "alt.xls", "", KindXLS, true},
		{"vcf extension", "phone.vcf", "", KindVCF, true},
		{"mime fallback", "upload", "text/vcard; charset=utf-8", KindVCF, true},
		{"unknown", "photo.png", "image/png", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Declared(tt.filename, tt.contentType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()
	csvData := []byte("Name,Email\nMax,max@example.com\n")
	vcfData := []byte("BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Max\r\nEND:VCARD\r\n")

	t.Run("csv matches", func(t *testing.T) {
		kind, err := c.Classify("leads.csv", "", csvData)
		require.NoError(t, err)
		assert.Equal(t, KindCSV, kind)
	})

	t.Run("vcard matches", func(t *testing.T) {
		kind, err := c.Classify("contacts.vcf", "", vcfData)
		require.NoError(t, err)
		assert.Equal(t, KindVCF, kind)
	})

	t.Run("xlsx matches", func(t *testing.T) {
		kind, err := c.Classify("leads.xlsx", "", xlsxFixture(t, [][]string{{"Name"}, {"Max"}}))
		require.NoError(t, err)
		assert.Equal(t, KindXLSX, kind)
	})

	t.Run("text declared as xlsx", func(t *testing.T) {
		_, err := c.Classify("leads.xlsx", "", csvData)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("vcard declared as csv", func(t *testing.T) {
		_, err := c.Classify("leads.csv", "", vcfData)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := c.Classify("leads.pdf", "", csvData)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := c.Classify("leads.csv", "", nil)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

// xlsxFixture builds an in-memory workbook whose first sheet holds rows.
func xlsxFixture(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
