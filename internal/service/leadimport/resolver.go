package leadimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

// phoneSuffixLen is the number of trailing digits compared for phone
// matching; leading country and area codes vary too much between sources.
const phoneSuffixLen = 8

// DuplicateReason is the skip reason recorded for fingerprint matches.
const DuplicateReason = "duplicate"

// Policy controls what happens to a candidate that matches an existing lead.
// UpdateExisting takes precedence over SkipDuplicates.
type Policy struct {
	SkipDuplicates bool `json:"skip_duplicates"`
	UpdateExisting bool `json:"update_existing"`
}

// ExistingLeadIndex is a read-only view of the lead store keyed by fingerprint.
type ExistingLeadIndex interface {
	Lookup(fingerprint string) (leadID string, ok bool)
}

// LeadIndex is an in-memory ExistingLeadIndex.
type LeadIndex map[string]string

func (idx LeadIndex) Lookup(fingerprint string) (string, bool) {
	id, ok := idx[fingerprint]
	return id, ok
}

// Resolved pairs a candidate with its decided disposition.
type Resolved struct {
	Candidate   domain.CandidateLead `json:"candidate"`
	Disposition domain.Disposition   `json:"disposition"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	// BatchDuplicateOf is the position of an earlier candidate in the same
	// batch sharing this fingerprint. Informational only: both are evaluated
	// against the store on their own.
	BatchDuplicateOf *int `json:"batch_duplicate_of,omitempty"`
}

// Fingerprint returns the dedupe key of a candidate: "email:<lowercase>" when
// it has an email, else "phone:<last 8 digits>", else "" (no fingerprint).
func Fingerprint(c *domain.CandidateLead) string {
	if c.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*c.Email)); email != "" {
			return "email:" + email
		}
	}
	if c.Phone != nil {
		if suffix := PhoneSuffix(*c.Phone); suffix != "" {
			return "phone:" + suffix
		}
	}
	return ""
}

// PhoneSuffix returns the last eight digits of a phone number, or all of its
// digits when it has fewer.
func PhoneSuffix(phone string) string {
	digits := datanorm.PhoneDigits(phone)
	if len(digits) > phoneSuffixLen {
		return digits[len(digits)-phoneSuffixLen:]
	}
	return digits
}

// Resolve decides a disposition for every candidate. It never fails and
// never mutates idx. Candidates without a fingerprint are always created.
func Resolve(cands []domain.CandidateLead, idx ExistingLeadIndex, p Policy) []Resolved {
	out := make([]Resolved, len(cands))
	firstSeen := make(map[string]int)
	siblings := 0

	for i, c := range cands {
		r := Resolved{Candidate: c, Disposition: domain.Create(), Fingerprint: Fingerprint(&c)}
		if r.Fingerprint != "" {
			if first, dup := firstSeen[r.Fingerprint]; dup {
				r.BatchDuplicateOf = &first
				siblings++
			} else {
				firstSeen[r.Fingerprint] = i
			}
			if id, ok := idx.Lookup(r.Fingerprint); ok {
				r.Disposition = decide(id, p)
			}
		}
		out[i] = r
	}

	if siblings > 0 {
		logger.Warn("batch contains candidates sharing a fingerprint",
			"candidates", len(cands), "siblings", siblings)
	}
	return out
}

func decide(existingID string, p Policy) domain.Disposition {
	switch {
	case p.UpdateExisting:
		return domain.MergeInto(existingID)
	case p.SkipDuplicates:
		return domain.SkipDuplicate(DuplicateReason)
	default:
		return domain.Create()
	}
}

// PrefetchIndex resolves the distinct fingerprints of cands against the
// store and returns the matches as a LeadIndex. Stores implementing
// FingerprintBatcher are asked once; others once per fingerprint. It
// performs no writes, so a failure here leaves the store untouched.
func PrefetchIndex(ctx context.Context, store LeadStore, cands []domain.CandidateLead) (LeadIndex, error) {
	var fps []string
	seen := make(map[string]bool)
	for i := range cands {
		fp := Fingerprint(&cands[i])
		if fp == "" || seen[fp] {
			continue
		}
		seen[fp] = true
		fps = append(fps, fp)
	}

	if batcher, ok := store.(FingerprintBatcher); ok && len(fps) > 0 {
		found, err := batcher.LookupFingerprints(ctx, fps)
		if err != nil {
			return nil, fmt.Errorf("lookup fingerprints: %w", err)
		}
		return LeadIndex(found), nil
	}

	idx := make(LeadIndex)
	for _, fp := range fps {
		id, found, err := store.LookupByFingerprint(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("lookup fingerprint: %w", err)
		}
		if found {
			idx[fp] = id
		}
	}
	return idx, nil
}
