package datanorm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

// Normalize converts one table row into a candidate lead. It returns nil when
// the row carries no identifiable person: name is empty and so are both
// first_name and last_name. Unmapped fields stay nil.
func Normalize(row, header []string, m ColumnMapping) *domain.CandidateLead {
	index := headerIndex(header)
	get := func(f CanonicalField) string {
		h, ok := m[f]
		if !ok {
			return ""
		}
		i, ok := index[h]
		if !ok || i >= len(row) {
			return ""
		}
		return cleanCell(row[i])
	}

	name := get(FieldName)
	if name == "" {
		name = joinName(get(FieldFirstName), get(FieldLastName))
	}
	if name == "" {
		return nil
	}

	c := &domain.CandidateLead{
		Name:     name,
		Email:    optional(normalizeEmail(get(FieldEmail))),
		Phone:    optional(normalizePhone(get(FieldPhone))),
		WhatsApp: optional(normalizePhone(get(FieldWhatsApp))),
		Company:  optional(get(FieldCompany)),
		Position: optional(get(FieldPosition)),
		Notes:    optional(get(FieldNotes)),
		Status:   optional(get(FieldStatus)),
	}

	setSocial(&c.Social, "instagram", get(FieldInstagram))
	setSocial(&c.Social, "facebook", get(FieldFacebook))
	setSocial(&c.Social, "linkedin", get(FieldLinkedIn))
	setSocial(&c.Social, "twitter", get(FieldTwitter))
	setSocial(&c.Social, "tiktok", get(FieldTikTok))
	setSocial(&c.Social, "website", get(FieldWebsite))

	if raw := get(FieldLastContactAt); raw != "" {
		if t, ok := parseContactDate(raw); ok {
			c.LastContactAt = &t
		} else {
			// keep what the user typed rather than dropping it
			c.Notes = appendNote(c.Notes, "Last contact: "+raw)
		}
	}
	if raw := get(FieldScore); raw != "" {
		if score, ok := parseScore(raw); ok {
			c.SourceScore = &score
		}
	}

	c.WarmScore = WarmScore(c)
	return c
}

// NormalizeTable normalizes every row of t. Excluded holds the source line of
// each row dropped for lacking a name; such rows are not errors.
func NormalizeTable(t *RawTable, m ColumnMapping) (cands []domain.CandidateLead, excluded []int) {
	for i, row := range t.Rows {
		c := Normalize(row, t.Header, m)
		if c == nil {
			excluded = append(excluded, t.RowIndex(i))
			continue
		}
		c.RawRowIndex = t.RowIndex(i)
		cands = append(cands, *c)
	}
	return cands, excluded
}

// NormalizeVCard converts a parsed vCard into a candidate lead, or nil when
// the card has neither FN nor a given/family name.
func NormalizeVCard(card ParsedVCard) *domain.CandidateLead {
	name := cleanCell(card.FN)
	if name == "" {
		name = joinName(cleanCell(card.GivenName), cleanCell(card.FamilyName))
	}
	if name == "" {
		return nil
	}

	c := &domain.CandidateLead{
		Name:        name,
		Company:     optional(cleanCell(card.Org)),
		Position:    optional(cleanCell(card.Title)),
		Notes:       optional(cleanCell(card.Note)),
		WhatsApp:    optional(normalizePhone(cleanCell(card.WhatsApp))),
		RawRowIndex: card.RowIndex(),
	}
	for _, e := range card.Emails {
		if email := normalizeEmail(e); email != "" {
			c.Email = &email
			break
		}
	}
	for _, tel := range card.Tels {
		if phone := normalizePhone(cleanCell(tel)); phone != "" {
			c.Phone = &phone
			break
		}
	}
	for _, network := range socialNetworks {
		setSocial(&c.Social, network, cleanCell(card.Socials[network]))
	}
	for _, u := range card.URLs {
		u = cleanCell(u)
		if network := socialNetworkFromURL(u); network != "" {
			setSocial(&c.Social, network, u)
		} else {
			setSocial(&c.Social, "website", u)
		}
	}

	c.WarmScore = WarmScore(c)
	return c
}

// NormalizeSource normalizes a decoded file and tags every candidate with
// the import channel it came through.
func NormalizeSource(src *Source, m ColumnMapping) (cands []domain.CandidateLead, excluded []int) {
	if src.Kind == KindVCF {
		for _, card := range src.Cards {
			c := NormalizeVCard(card)
			if c == nil {
				excluded = append(excluded, card.RowIndex())
				continue
			}
			cands = append(cands, *c)
		}
	} else if src.Table != nil {
		cands, excluded = NormalizeTable(src.Table, m)
	}

	source := string(SourceFor(src.Kind))
	for i := range cands {
		cands[i].Source = optional(source)
	}
	if len(excluded) > 0 {
		logger.Info("rows excluded without name", "file", src.Filename, "excluded", len(excluded))
	}
	return cands, excluded
}

// SourceFor maps a file kind to the lead source tag.
func SourceFor(kind FileKind) domain.LeadSource {
	switch kind {
	case KindXLSX, KindXLS:
		return domain.SourceExcelImport
	case KindVCF:
		return domain.SourceVCardImport
	default:
		return domain.SourceCSVImport
	}
}

// ExtractedContact is one record returned by the screenshot extraction
// service. Its shape is not guaranteed: values may be strings, numbers or
// missing, so it is coerced here before entering the pipeline.
type ExtractedContact map[string]interface{}

// NormalizeExtracted converts extraction records into candidates. Excluded
// holds the 1-based positions of records without a name.
func NormalizeExtracted(recs []ExtractedContact) (cands []domain.CandidateLead, excluded []int) {
	for i, rec := range recs {
		get := func(keys ...string) string {
			for _, k := range keys {
				if v := cleanCell(coerceString(rec[k])); v != "" {
					return v
				}
			}
			return ""
		}

		name := get("name", "full_name", "fullName")
		if name == "" {
			name = joinName(get("first_name", "firstName"), get("last_name", "lastName"))
		}
		if name == "" {
			excluded = append(excluded, i+1)
			continue
		}

		c := domain.CandidateLead{
			Name:        name,
			Email:       optional(normalizeEmail(get("email"))),
			Phone:       optional(normalizePhone(get("phone", "telephone"))),
			WhatsApp:    optional(normalizePhone(get("whatsapp"))),
			Company:     optional(get("company", "organization")),
			Position:    optional(get("position", "title")),
			Notes:       optional(get("notes", "note")),
			Source:      optional(string(domain.SourceScreenshotImport)),
			RawRowIndex: i + 1,
		}
		for _, network := range []string{"instagram", "facebook", "linkedin", "twitter", "tiktok", "website"} {
			setSocial(&c.Social, network, get(network))
		}
		if social, ok := rec["social"].(map[string]interface{}); ok {
			for network, v := range social {
				setSocial(&c.Social, strings.ToLower(network), cleanCell(coerceString(v)))
			}
		}
		if score, ok := parseScore(get("score")); ok {
			c.SourceScore = &score
		}

		c.WarmScore = WarmScore(&c)
		cands = append(cands, c)
	}
	return cands, excluded
}

func coerceString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// headerIndex maps each header to its first column position.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return index
}
