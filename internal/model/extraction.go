package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ConfidenceTier is a coarse reliability label attached to an extracted fact.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// Valid reports whether t is one of the known tiers.
func (t ConfidenceTier) Valid() bool {
	switch t {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Field limits enforced by Normalize.
const (
	MinVetCount               = 1
	MaxVetCount               = 50
	MaxSpecialtyServices      = 10
	MaxPersonalizationContext = 3
	MaxAwards                 = 5
	MaxRecentNews             = 3
	MaxCommunityInvolvement   = 3
	MaxPhilosophyChars        = 500
)

// DecisionMaker identifies the person to contact at a practice.
type DecisionMaker struct {
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ExtractionResult is the typed output of the extraction service. It is
// validated once by Normalize and treated as immutable afterwards.
type ExtractionResult struct {
	VetCount               *int           `json:"vet_count_total,omitempty"`
	VetCountConfidence     ConfidenceTier `json:"vet_count_confidence,omitempty"`
	DecisionMaker          *DecisionMaker `json:"decision_maker,omitempty"`
	Emergency24x7          bool           `json:"emergency_24_7"`
	OnlineBooking          bool           `json:"online_booking"`
	PatientPortal          bool           `json:"patient_portal"`
	Telemedicine           bool           `json:"telemedicine_virtual_care"`
	SpecialtyServices      []string       `json:"specialty_services,omitempty"`
	PersonalizationContext []string       `json:"personalization_context,omitempty"`
	Awards                 []string       `json:"awards_accreditations,omitempty"`
	RecentNews             []string       `json:"recent_news_updates,omitempty"`
	CommunityInvolvement   []string       `json:"community_involvement,omitempty"`
	PracticePhilosophy     string         `json:"practice_philosophy,omitempty"`

	ExtractedAt time.Time `json:"extracted_at"`
	// VetCountAt is when VetCount was extracted. An extraction that finds
	// no count keeps the earlier one, so this can predate ExtractedAt.
	VetCountAt *time.Time `json:"vet_count_at,omitempty"`
	Model      string     `json:"model,omitempty"`
	CostUSD    float64    `json:"cost_usd,omitempty"`
}

// staleAfter is the gap past which a head count is reported as carried over
// from an earlier extraction.
const staleAfter = time.Minute

// VetCountCarriedOver reports whether VetCount came from an extraction
// earlier than ExtractedAt.
func (r *ExtractionResult) VetCountCarriedOver() bool {
	if r == nil || r.VetCount == nil || r.VetCountAt == nil || r.ExtractedAt.IsZero() {
		return false
	}
	return r.ExtractedAt.Sub(*r.VetCountAt) > staleAfter
}

// Normalize clamps the raw service output to the field limits: counts
// outside [MinVetCount, MaxVetCount] are dropped, emails without '@' are
// dropped, lists are trimmed and truncated, and an unknown confidence tier
// becomes low.
func (r *ExtractionResult) Normalize() {
	if r.VetCount != nil && (*r.VetCount < MinVetCount || *r.VetCount > MaxVetCount) {
		r.VetCount = nil
	}
	if r.VetCount == nil {
		r.VetCountConfidence = ""
		r.VetCountAt = nil
	} else if !r.VetCountConfidence.Valid() {
		r.VetCountConfidence = ConfidenceLow
	}

	if dm := r.DecisionMaker; dm != nil {
		dm.Name = strings.TrimSpace(dm.Name)
		dm.Role = strings.TrimSpace(dm.Role)
		dm.Email = strings.TrimSpace(dm.Email)
		dm.Phone = strings.TrimSpace(dm.Phone)
		if !strings.Contains(dm.Email, "@") {
			dm.Email = ""
		}
		if *dm == (DecisionMaker{}) {
			r.DecisionMaker = nil
		}
	}

	r.SpecialtyServices = cleanList(r.SpecialtyServices, MaxSpecialtyServices)
	r.PersonalizationContext = cleanList(r.PersonalizationContext, MaxPersonalizationContext)
	r.Awards = cleanList(r.Awards, MaxAwards)
	r.RecentNews = cleanList(r.RecentNews, MaxRecentNews)
	r.CommunityInvolvement = cleanList(r.CommunityInvolvement, MaxCommunityInvolvement)
	r.PracticePhilosophy = TruncateRunes(strings.TrimSpace(r.PracticePhilosophy), MaxPhilosophyChars)
}

// HasDecisionMakerName reports whether a decision maker name is known.
func (r *ExtractionResult) HasDecisionMakerName() bool {
	return r != nil && r.DecisionMaker != nil && r.DecisionMaker.Name != ""
}

// HasDecisionMakerEmail reports whether a decision maker email is known.
func (r *ExtractionResult) HasDecisionMakerEmail() bool {
	return r != nil && r.DecisionMaker != nil && r.DecisionMaker.Email != ""
}

func cleanList(in []string, limit int) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, min(len(in), limit))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TruncateRunes cuts s to at most n runes without splitting a character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
