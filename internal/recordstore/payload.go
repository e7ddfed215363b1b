package recordstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/scoring"
	"github.com/sells-group/lead-enrichment/pkg/notion"
)

// listSep joins list fields stored as rich text.
const listSep = "\n"

func emptyText() notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: []notionapi.RichText{}}
}

func optionalText(s string) notionapi.RichTextProperty {
	if s == "" {
		return emptyText()
	}
	return notion.LongTextValue(s)
}

// InProgressPayload marks a candidate as being enriched.
func InProgressPayload() notionapi.Properties {
	return notionapi.Properties{
		PropEnrichmentStatus: notion.SelectValue(string(model.EnrichmentInProgress)),
	}
}

// EnrichmentPayload builds the write-back for a successful extraction. Every
// extracted field is written so a re-enrichment replaces stale values; an
// unknown head count is left as it was, along with its Vet Count Date.
func EnrichmentPayload(r *model.ExtractionResult, now time.Time) notionapi.Properties {
	props := notionapi.Properties{
		PropEmergency:              notion.CheckboxValue(r.Emergency24x7),
		PropOnlineBooking:          notion.CheckboxValue(r.OnlineBooking),
		PropPatientPortal:          notion.CheckboxValue(r.PatientPortal),
		PropTelemedicine:           notion.CheckboxValue(r.Telemedicine),
		PropSpecialtyServices:      notion.MultiSelectValue(r.SpecialtyServices),
		PropPersonalizationContext: optionalText(strings.Join(r.PersonalizationContext, listSep)),
		PropAwards:                 optionalText(strings.Join(r.Awards, listSep)),
		PropRecentNews:             optionalText(strings.Join(r.RecentNews, listSep)),
		PropCommunityInvolvement:   optionalText(strings.Join(r.CommunityInvolvement, listSep)),
		PropPracticePhilosophy:     optionalText(r.PracticePhilosophy),
		PropEnrichmentCost:         notion.NumberValue(r.CostUSD),
		PropEnrichmentStatus:       notion.SelectValue(string(model.EnrichmentCompleted)),
		PropLastEnrichmentDate:     notion.DateValue(now),
		PropEnrichmentError:        emptyText(),
	}
	if r.VetCount != nil {
		props[PropVetCount] = notion.NumberValue(float64(*r.VetCount))
		props[PropVetCountConfidence] = notion.SelectValue(string(r.VetCountConfidence))
		props[PropVetCountDate] = notion.DateValue(now)
	}

	dm := model.DecisionMaker{}
	if r.DecisionMaker != nil {
		dm = *r.DecisionMaker
	}
	props[PropDecisionMakerName] = optionalText(dm.Name)
	props[PropDecisionMakerRole] = optionalText(dm.Role)
	props[PropDecisionMakerEmail] = optionalText(dm.Email)
	props[PropDecisionMakerPhone] = optionalText(dm.Phone)
	return props
}

// FailedPayload records an enrichment failure. Fields from an earlier
// successful enrichment are left untouched.
func FailedPayload(reason string) notionapi.Properties {
	return notionapi.Properties{
		PropEnrichmentStatus: notion.SelectValue(string(model.EnrichmentFailed)),
		PropEnrichmentError:  notion.LongTextValue(truncateReason(reason)),
	}
}

// ScoringPayload builds the write-back for a score breakdown.
func ScoringPayload(b scoring.Breakdown, now time.Time) (notionapi.Properties, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: encode score breakdown")
	}
	props := notionapi.Properties{
		PropLeadScore:       notion.NumberValue(float64(b.FinalScore)),
		PropPriorityTier:    notion.SelectValue(string(b.Tier)),
		PropScoreBreakdown:  notion.LongTextValue(string(raw)),
		PropConfidenceFlags: notion.MultiSelectValue(b.Flags),
		PropTargetFit:       notion.CheckboxValue(b.TargetFit),
		PropRecommendation:  notion.LongTextValue(b.Recommendation),
		PropScoringStatus:   notion.SelectValue(string(model.ScoringScored)),
		PropScoringError:    emptyText(),
		PropLastScoredDate:  notion.DateValue(now),
	}
	if b.SizeCategory != scoring.SizeUnknown {
		props[PropSizeCategory] = notion.SelectValue(string(b.SizeCategory))
	}
	return props, nil
}

// ScoringFailedPayload records a scoring failure without touching the
// enrichment fields or the previous score.
func ScoringFailedPayload(reason string) notionapi.Properties {
	return notionapi.Properties{
		PropScoringStatus: notion.SelectValue(string(model.ScoringFailed)),
		PropScoringError:  notion.LongTextValue(truncateReason(reason)),
	}
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return model.TruncateRunes(reason, MaxErrorChars)
}
