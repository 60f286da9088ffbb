package leadimport

import "github.com/ignite/lead-import/internal/domain"

// DefaultMaxReportedErrors bounds the error sample shown to users.
const DefaultMaxReportedErrors = 10

// Summary is the user-facing view of an outcome: full counts, bounded error
// list. The outcome itself always keeps every error.
type Summary struct {
	Created           int                  `json:"created"`
	Updated           int                  `json:"updated"`
	DuplicatesSkipped int                  `json:"duplicates_skipped"`
	Failed            int                  `json:"failed"`
	Total             int                  `json:"total"`
	Errors            []domain.RecordError `json:"errors"`
	ErrorsTruncated   bool                 `json:"errors_truncated,omitempty"`
}

// Summarize keeps at most maxErrors entries of the error list.
func Summarize(o domain.ImportOutcome, maxErrors int) Summary {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxReportedErrors
	}
	s := Summary{
		Created:           o.Created,
		Updated:           o.Updated,
		DuplicatesSkipped: o.DuplicatesSkipped,
		Failed:            len(o.Errors),
		Total:             o.Total(),
		Errors:            head(o.Errors, maxErrors),
	}
	if s.Errors == nil {
		s.Errors = []domain.RecordError{}
	}
	s.ErrorsTruncated = len(o.Errors) > len(s.Errors)
	return s
}
