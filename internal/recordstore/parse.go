package recordstore

import (
	"math"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/pkg/notion"
)

// candidateFromPage reads a Notion page into a Candidate. Enrichment fields
// are only read back for completed enrichments.
func candidateFromPage(page notionapi.Page) model.Candidate {
	props := page.Properties
	c := model.Candidate{
		ID:               string(page.ID),
		PlaceID:          notion.Text(props, PropPlaceID),
		Name:             notion.Text(props, PropPracticeName),
		Website:          notion.URL(props, PropWebsite),
		EnrichmentStatus: model.EnrichmentStatus(notion.Select(props, PropEnrichmentStatus)),
		LastEnrichedAt:   notion.DateStart(props, PropLastEnrichmentDate),
		ScoringStatus:    model.ScoringStatus(notion.Select(props, PropScoringStatus)),
	}
	if c.EnrichmentStatus == "" {
		c.EnrichmentStatus = model.EnrichmentPending
	}
	if c.ScoringStatus == "" {
		c.ScoringStatus = model.ScoringNotScored
	}

	c.Baseline = model.Baseline{
		HasWebsite:        c.Website != "",
		MultipleLocations: notion.Checkbox(props, PropMultipleLocations),
	}
	if n, ok := notion.Number(props, PropGoogleReviewCount); ok {
		c.Baseline.ReviewCount = model.IntPtr(int(math.Round(n)))
	}
	if r, ok := notion.Number(props, PropGoogleRating); ok {
		c.Baseline.Rating = model.FloatPtr(r)
	}

	if c.EnrichmentStatus == model.EnrichmentCompleted {
		c.Enrichment = enrichmentFromProps(props)
	}
	return c
}

func enrichmentFromProps(props notionapi.Properties) *model.ExtractionResult {
	r := &model.ExtractionResult{
		VetCountConfidence:     model.ConfidenceTier(notion.Select(props, PropVetCountConfidence)),
		Emergency24x7:          notion.Checkbox(props, PropEmergency),
		OnlineBooking:          notion.Checkbox(props, PropOnlineBooking),
		PatientPortal:          notion.Checkbox(props, PropPatientPortal),
		Telemedicine:           notion.Checkbox(props, PropTelemedicine),
		SpecialtyServices:      notion.MultiSelect(props, PropSpecialtyServices),
		PersonalizationContext: splitList(notion.Text(props, PropPersonalizationContext)),
		Awards:                 splitList(notion.Text(props, PropAwards)),
		RecentNews:             splitList(notion.Text(props, PropRecentNews)),
		CommunityInvolvement:   splitList(notion.Text(props, PropCommunityInvolvement)),
		PracticePhilosophy:     notion.Text(props, PropPracticePhilosophy),
	}
	if n, ok := notion.Number(props, PropVetCount); ok && n > 0 {
		r.VetCount = model.IntPtr(int(math.Round(n)))
	}
	if cost, ok := notion.Number(props, PropEnrichmentCost); ok {
		r.CostUSD = cost
	}
	if at := notion.DateStart(props, PropLastEnrichmentDate); at != nil {
		r.ExtractedAt = *at
	}
	if r.VetCount != nil {
		r.VetCountAt = notion.DateStart(props, PropVetCountDate)
	}
	dm := model.DecisionMaker{
		Name:  notion.Text(props, PropDecisionMakerName),
		Role:  notion.Text(props, PropDecisionMakerRole),
		Email: notion.Text(props, PropDecisionMakerEmail),
		Phone: notion.Text(props, PropDecisionMakerPhone),
	}
	if dm != (model.DecisionMaker{}) {
		r.DecisionMaker = &dm
	}
	r.Normalize()
	return r
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}
