package recordstore

import (
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Notion property names read by the pipeline.
const (
	PropPracticeName      = "Practice Name"
	PropWebsite           = "Website"
	PropGoogleRating      = "Google Rating"
	PropGoogleReviewCount = "Google Review Count"
	PropMultipleLocations = "Has Multiple Locations"
	PropPlaceID           = "Place ID"
)

// Enrichment properties written by UpdateEnrichment, MarkInProgress and
// MarkFailed.
const (
	PropVetCount               = "Confirmed Vet Count (Total)"
	PropVetCountConfidence     = "Vet Count Confidence"
	PropVetCountDate           = "Vet Count Date"
	PropDecisionMakerName      = "Decision Maker Name"
	PropDecisionMakerRole      = "Decision Maker Role"
	PropDecisionMakerEmail     = "Decision Maker Email"
	PropDecisionMakerPhone     = "Decision Maker Phone"
	PropEmergency              = "24/7 Emergency Services"
	PropOnlineBooking          = "Online Booking"
	PropPatientPortal          = "Patient Portal"
	PropTelemedicine           = "Telemedicine"
	PropSpecialtyServices      = "Specialty Services"
	PropPersonalizationContext = "Personalization Context"
	PropAwards                 = "Awards/Accreditations"
	PropRecentNews             = "Recent News/Updates"
	PropCommunityInvolvement   = "Community Involvement"
	PropPracticePhilosophy     = "Practice Philosophy/Mission"
	PropEnrichmentCost         = "Enrichment Cost"
	PropEnrichmentStatus       = "Enrichment Status"
	PropLastEnrichmentDate     = "Last Enrichment Date"
	PropEnrichmentError        = "Enrichment Error"
)

// Scoring properties written by UpdateScoring and MarkScoringFailed.
const (
	PropLeadScore       = "Lead Score"
	PropPriorityTier    = "Priority Tier"
	PropScoreBreakdown  = "Score Breakdown"
	PropConfidenceFlags = "Confidence Flags"
	PropSizeCategory    = "Practice Size Category"
	PropTargetFit       = "Target Fit"
	PropRecommendation  = "Outreach Recommendation"
	PropScoringStatus   = "Scoring Status"
	PropScoringError    = "Scoring Error"
	PropLastScoredDate  = "Last Scored Date"
)

// MaxErrorChars bounds the failure reason written to the record.
const MaxErrorChars = 2000

// EnrichmentFields is the complete set of properties the enrichment path
// may write.
var EnrichmentFields = fieldSet(
	PropVetCount, PropVetCountConfidence, PropVetCountDate,
	PropDecisionMakerName, PropDecisionMakerRole, PropDecisionMakerEmail, PropDecisionMakerPhone,
	PropEmergency, PropOnlineBooking, PropPatientPortal, PropTelemedicine,
	PropSpecialtyServices, PropPersonalizationContext, PropAwards, PropRecentNews,
	PropCommunityInvolvement, PropPracticePhilosophy, PropEnrichmentCost,
	PropEnrichmentStatus, PropLastEnrichmentDate, PropEnrichmentError,
)

// ScoringFields is the complete set of properties the scoring path may write.
var ScoringFields = fieldSet(
	PropLeadScore, PropPriorityTier, PropScoreBreakdown, PropConfidenceFlags,
	PropSizeCategory, PropTargetFit, PropRecommendation,
	PropScoringStatus, PropScoringError, PropLastScoredDate,
)

// PreservedFields are owned by people or by upstream ingestion and are never
// written by this pipeline.
var PreservedFields = fieldSet(
	"Status", "Assigned To", "Notes", "Contact History", "Outreach Status",
	"Last Contacted", "Next Follow-Up", "Owner", "Tags",
	PropPracticeName, PropWebsite, PropGoogleRating, PropGoogleReviewCount,
	PropMultipleLocations, PropPlaceID, "Address", "Phone", "City", "State",
)

func fieldSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// checkPayload rejects any property outside allowed. Preserved fields are
// rejected even if allowed lists them.
func checkPayload(props notionapi.Properties, allowed map[string]bool) error {
	var bad []string
	for k := range props {
		if PreservedFields[k] || !allowed[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return eris.Errorf("recordstore: payload writes disallowed properties %q", bad)
	}
	return nil
}
