package api

import (
	"net/http"
	"strings"
)

// DefaultOrgID is used when a request names no organization.
const DefaultOrgID = "default"

// OrgIDFromRequest extracts the organization of a request.
// Priority: 1. X-Organization-ID header, 2. org_id query param, 3. DefaultOrgID.
func OrgIDFromRequest(r *http.Request) string {
	if orgID := strings.TrimSpace(r.Header.Get("X-Organization-ID")); orgID != "" {
		return orgID
	}
	if orgID := strings.TrimSpace(r.URL.Query().Get("org_id")); orgID != "" {
		return orgID
	}
	return DefaultOrgID
}
