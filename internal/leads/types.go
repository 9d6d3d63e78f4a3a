// Package leads holds the data shared by discovery, scoring, extraction and storage.
package leads

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Search.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Search is one (area, sector) request and its run outcome.
type Search struct {
	ID           int64     `json:"id"`
	Area         string    `json:"area"`
	Sector       string    `json:"sector"`
	Status       Status    `json:"status"`
	TotalResults int       `json:"totalResults"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SearchUpdate lists the fields to change on a Search. Nil fields are left alone.
type SearchUpdate struct {
	Status       *Status
	TotalResults *int
	ErrorMessage *string
}

// Candidate is an unverified business lead.
type Candidate struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// ScoredCandidate is a Candidate with a relevance score between 0 and 100.
type ScoredCandidate struct {
	Candidate
	RelevanceScore int `json:"relevanceScore"`
}

// EmailOrigin records how an email address was obtained.
type EmailOrigin string

const (
	OriginAI          EmailOrigin = "ai"
	OriginRegex       EmailOrigin = "regex"
	OriginPlaceholder EmailOrigin = "placeholder"
)

// ContactResult is one (business, email) pair belonging to a Search.
type ContactResult struct {
	ID           int64       `json:"id,omitempty"`
	SearchID     int64       `json:"searchId,omitempty"`
	BusinessName string      `json:"businessName"`
	Website      string      `json:"website,omitempty"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone,omitempty"`
	Address      string      `json:"address,omitempty"`
	City         string      `json:"city,omitempty"`
	PostalCode   string      `json:"postalCode,omitempty"`
	EmailSource  string      `json:"emailSource,omitempty"`
	Origin       EmailOrigin `json:"emailOrigin"`
	CreatedAt    time.Time   `json:"createdAt,omitempty"`
}

var roleMarkers = []string{"noreply", "no-reply", "donotreply"}

// IsRoleAddress reports whether email belongs to an automated sender.
func IsRoleAddress(email string) bool {
	lower := strings.ToLower(email)
	for _, m := range roleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// NormalizeEmails trims and lower-cases the input, dropping empty values,
// strings without "@", role addresses, and duplicates. Order of first
// appearance is kept.
func NormalizeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		e := strings.ToLower(strings.TrimSpace(raw))
		e = strings.TrimPrefix(e, "mailto:")
		if e == "" || !strings.Contains(e, "@") || IsRoleAddress(e) {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
