package datanorm

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/ignite/lead-import/internal/domain"
)

// Warm score weights. The score only grows with the amount of usable
// contact data and never exceeds maxWarmScore.
const (
	weightEmail    = 30
	weightPhone    = 25
	weightWhatsApp = 10
	weightCompany  = 15
	weightPosition = 5
	weightSocial   = 5
	maxWarmScore   = 100
)

// WarmScore derives how much usable contact data a candidate carries.
func WarmScore(c *domain.CandidateLead) int {
	if c == nil {
		return 0
	}
	score := 0
	if c.Email != nil {
		score += weightEmail
	}
	if c.Phone != nil {
		score += weightPhone
	}
	if c.WhatsApp != nil {
		score += weightWhatsApp
	}
	if c.Company != nil {
		score += weightCompany
	}
	if c.Position != nil {
		score += weightPosition
	}
	score += weightSocial * c.Social.Count()
	if score > maxWarmScore {
		return maxWarmScore
	}
	return score
}

// cleanCell trims a raw cell and normalizes it to NFC so that visually equal
// names exported by different tools compare equal.
func cleanCell(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}

// optional returns nil for an empty value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeEmail lowercases an address and strips the wrappers that mail
// clients add when copying ("mailto:", quotes, "Name <addr>").
func normalizeEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if lt := strings.LastIndex(email, "<"); lt >= 0 {
		if gt := strings.LastIndex(email, ">"); gt > lt {
			email = email[lt+1 : gt]
		}
	}
	email = cases.Lower(language.Und).String(strings.TrimSpace(email))
	email = strings.TrimPrefix(email, "mailto:")
	return strings.Trim(email, "\"'<> ")
}

// PhoneDigits keeps only the ASCII digits of a phone number.
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePhone collapses internal whitespace; the number is otherwise kept
// as the user typed it. A value without a single digit is dropped.
func normalizePhone(raw string) string {
	if PhoneDigits(raw) == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

var contactDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
}

// Excel stores dates as days since 1899-12-30 when a cell is not formatted.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseContactDate accepts ISO, German (dd.mm.yyyy) and US (mm/dd/yyyy)
// dates as well as raw Excel serial numbers.
func parseContactDate(raw string) (time.Time, bool) {
	for _, layout := range contactDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 20000 && serial < 80000 {
		days := math.Floor(serial)
		secs := math.Round((serial - days) * 86400)
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
	}
	return time.Time{}, false
}

// parseScore reads a user supplied score such as "80", "80.5" or "80 %".
func parseScore(raw string) (int, bool) {
	v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	v = strings.Replace(v, ",", ".", 1)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

var socialHosts = map[string]string{
	"instagram.com": "instagram",
	"instagr.am":    "instagram",
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"linkedin.com":  "linkedin",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"tiktok.com":    "tiktok",
}

// socialNetworkFromURL returns the network a profile URL belongs to, or ""
// when the host is not a known social network.
func socialNetworkFromURL(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if network, ok := socialHosts[host]; ok {
		return network
	}
	if i := strings.Index(host, "."); i >= 0 {
		return socialHosts[host[i+1:]]
	}
	return ""
}

// socialNetworks is the order profile properties are applied in. "twitter"
// and "x" share a slot, so the order decides which one wins.
var socialNetworks = []string{"instagram", "facebook", "linkedin", "twitter", "x", "tiktok", "website"}

// setSocial stores value under network, keeping the first value seen.
// Unknown networks are ignored.
func setSocial(s **domain.Social, network, value string) {
	if value == "" {
		return
	}
	social := *s
	if social == nil {
		social = &domain.Social{}
	}
	var slot **string
	switch network {
	case "instagram":
		slot = &social.Instagram
	case "facebook":
		slot = &social.Facebook
	case "linkedin":
		slot = &social.LinkedIn
	case "twitter", "x":
		slot = &social.Twitter
	case "tiktok":
		slot = &social.TikTok
	case "website":
		slot = &social.Website
	default:
		return
	}
	if *slot == nil {
		*slot = optional(value)
	}
	*s = social
}

func appendNote(notes *string, line string) *string {
	if line == "" {
		return notes
	}
	if notes == nil {
		return optional(line)
	}
	joined := *notes + "\n" + line
	return &joined
}

func joinName(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
