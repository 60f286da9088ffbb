package domain

import "time"

// LeadSource tags the channel a candidate lead came in through.
type LeadSource string

const (
	SourceCSVImport        LeadSource = "csv_import"
	SourceExcelImport      LeadSource = "excel_import"
	SourceVCardImport      LeadSource = "vcard_import"
	SourceScreenshotImport LeadSource = "screenshot_import"
)

// Social holds the optional social handles of a lead. A nil *string means the
// source carried no value for that network.
type Social struct {
	Instagram *string `json:"instagram,omitempty"`
	Facebook  *string `json:"facebook,omitempty"`
	LinkedIn  *string `json:"linkedin,omitempty"`
	Twitter   *string `json:"twitter,omitempty"`
	TikTok    *string `json:"tiktok,omitempty"`
	Website   *string `json:"website,omitempty"`
}

// Count returns how many handles are set.
func (s *Social) Count() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, v := range []*string{s.Instagram, s.Facebook, s.LinkedIn, s.Twitter, s.TikTok, s.Website} {
		if v != nil {
			n++
		}
	}
	return n
}

// CandidateLead is a normalized, not-yet-committed contact record.
//
// Nullable fields are pointers: nil means "no value", which is different from
// an empty string. The normalizer never produces a pointer to "".
type CandidateLead struct {
	Name          string     `json:"name"`
	Email         *string    `json:"email"`
	Phone         *string    `json:"phone"`
	WhatsApp      *string    `json:"whatsapp"`
	Company       *string    `json:"company"`
	Position      *string    `json:"position"`
	Notes         *string    `json:"notes"`
	Source        *string    `json:"source"`
	Status        *string    `json:"status,omitempty"`
	Social        *Social    `json:"social"`
	LastContactAt *time.Time `json:"last_contact_at,omitempty"`
	SourceScore   *int       `json:"source_score,omitempty"`
	WarmScore     int        `json:"warm_score"`
	RawRowIndex   int        `json:"raw_row_index"`
}

// HasName reports whether the candidate carries an identifiable person.
func (c *CandidateLead) HasName() bool {
	return c != nil && c.Name != ""
}

// Temperature buckets for created leads.
const (
	TemperatureAuto = "auto"
	TemperatureHot  = "hot"
	TemperatureWarm = "warm"
	TemperatureCold = "cold"
)

// LeadDefaults are pass-through settings applied to every lead created by an
// import. They are not computed by the pipeline.
type LeadDefaults struct {
	Status      string     `json:"status"`
	Temperature string     `json:"temperature"`
	FollowUpAt  *time.Time `json:"follow_up_at,omitempty"`
}

// Lead is a committed lead as stored by the lead store.
type Lead struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Name           string     `json:"name" db:"name"`
	Email          *string    `json:"email" db:"email"`
	Phone          *string    `json:"phone" db:"phone"`
	WhatsApp       *string    `json:"whatsapp" db:"whatsapp"`
	Company        *string    `json:"company" db:"company"`
	Position       *string    `json:"position" db:"position"`
	Notes          *string    `json:"notes" db:"notes"`
	Source         *string    `json:"source" db:"source"`
	Status         string     `json:"status" db:"status"`
	Temperature    string     `json:"temperature" db:"temperature"`
	Social         *Social    `json:"social" db:"social"`
	WarmScore      int        `json:"warm_score" db:"warm_score"`
	LastContactAt  *time.Time `json:"last_contact_at" db:"last_contact_at"`
	FollowUpAt     *time.Time `json:"follow_up_at" db:"follow_up_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
