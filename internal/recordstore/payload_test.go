package recordstore

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/scoring"
	"github.com/sells-group/lead-enrichment/pkg/notion"
)

func randomStrings(r *rand.Rand, n int) []string {
	out := make([]string, r.IntN(n+1))
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", r.IntN(1000))
	}
	return out
}

func randomResult(r *rand.Rand) *model.ExtractionResult {
	res := &model.ExtractionResult{
		Emergency24x7:          r.IntN(2) == 0,
		OnlineBooking:          r.IntN(2) == 0,
		PatientPortal:          r.IntN(2) == 0,
		Telemedicine:           r.IntN(2) == 0,
		SpecialtyServices:      randomStrings(r, 12),
		PersonalizationContext: randomStrings(r, 4),
		Awards:                 randomStrings(r, 6),
		RecentNews:             randomStrings(r, 4),
		CommunityInvolvement:   randomStrings(r, 4),
		PracticePhilosophy:     strings.Repeat("x", r.IntN(600)),
		CostUSD:                r.Float64(),
	}
	if r.IntN(3) > 0 {
		res.VetCount = model.IntPtr(r.IntN(60))
		res.VetCountConfidence = []model.ConfidenceTier{"high", "medium", "low", "bogus"}[r.IntN(4)]
	}
	if r.IntN(2) == 0 {
		res.DecisionMaker = &model.DecisionMaker{Name: "Dr. Lee", Email: "lee@vet.com"}
	}
	res.Normalize()
	return res
}

func assertNoPreserved(t *testing.T, props notionapi.Properties, allowed map[string]bool) {
	t.Helper()
	for k := range props {
		assert.False(t, PreservedFields[k], "payload writes preserved field %q", k)
		assert.True(t, allowed[k], "payload writes unlisted field %q", k)
	}
	require.NoError(t, checkPayload(props, allowed))
}

// Property: no payload builder ever produces a preserved field, for any
// extraction result or score.
func TestPayloads_NeverTouchPreservedFields(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		res := randomResult(r)
		assertNoPreserved(t, EnrichmentPayload(res, fixedNow), EnrichmentFields)

		in := scoring.Input{
			Baseline: model.Baseline{
				ReviewCount:       model.IntPtr(r.IntN(300)),
				Rating:            model.FloatPtr(r.Float64() * 5),
				HasWebsite:        r.IntN(2) == 0,
				MultipleLocations: r.IntN(2) == 0,
			},
			Confidence: model.FloatPtr(r.Float64()),
		}
		if r.IntN(4) > 0 {
			in.Enrichment = res
		}
		props, err := ScoringPayload(scoring.Score(in), fixedNow)
		require.NoError(t, err)
		assertNoPreserved(t, props, ScoringFields)
	}
	assertNoPreserved(t, InProgressPayload(), EnrichmentFields)
	assertNoPreserved(t, FailedPayload("boom"), EnrichmentFields)
	assertNoPreserved(t, ScoringFailedPayload("boom"), ScoringFields)
}

func TestFieldSetsDisjoint(t *testing.T) {
	for k := range EnrichmentFields {
		assert.False(t, ScoringFields[k], k)
		assert.False(t, PreservedFields[k], k)
	}
	for k := range ScoringFields {
		assert.False(t, PreservedFields[k], k)
	}
}

func TestCheckPayload_Rejects(t *testing.T) {
	err := checkPayload(notionapi.Properties{
		PropEnrichmentStatus: notion.SelectValue("Completed"),
		"Notes":              notion.RichTextValue("overwrite"),
		PropLeadScore:        notion.NumberValue(10),
	}, EnrichmentFields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Notes")
	assert.Contains(t, err.Error(), PropLeadScore)
}

func TestEnrichmentPayload(t *testing.T) {
	res := &model.ExtractionResult{
		VetCount:           model.IntPtr(5),
		VetCountConfidence: model.ConfidenceHigh,
		DecisionMaker:      &model.DecisionMaker{Name: "Dr. Jane Smith", Role: "Owner", Email: "jane@happypaws.com"},
		OnlineBooking:      true,
		SpecialtyServices:  []string{"Dental", "Surgery"},
		Awards:             []string{"AAHA Accredited"},
	}
	props := EnrichmentPayload(res, fixedNow)

	assert.Equal(t, 5.0, props[PropVetCount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "high", props[PropVetCountConfidence].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "Dr. Jane Smith", notion.Text(props, PropDecisionMakerName))
	assert.Equal(t, "", notion.Text(props, PropDecisionMakerPhone))
	assert.True(t, notion.Checkbox(props, PropOnlineBooking))
	assert.Equal(t, []string{"Dental", "Surgery"}, notion.MultiSelect(props, PropSpecialtyServices))
	assert.Equal(t, "Completed", notion.Select(props, PropEnrichmentStatus))
	assert.Equal(t, fixedNow, *notion.DateStart(props, PropLastEnrichmentDate))
	assert.Equal(t, fixedNow, *notion.DateStart(props, PropVetCountDate))

	// Unknown head count leaves the existing value and its date alone.
	props = EnrichmentPayload(&model.ExtractionResult{}, fixedNow)
	_, ok := props[PropVetCount]
	assert.False(t, ok)
	_, ok = props[PropVetCountDate]
	assert.False(t, ok)
}

func TestFailedPayload_TruncatesReason(t *testing.T) {
	props := FailedPayload(strings.Repeat("é", MaxErrorChars+100))
	reason := notion.Text(props, PropEnrichmentError)
	assert.Equal(t, MaxErrorChars, utf8.RuneCountInString(reason))
	assert.Equal(t, "Failed", notion.Select(props, PropEnrichmentStatus))

	assert.Equal(t, "unknown error", notion.Text(FailedPayload("  "), PropEnrichmentError))
}

func TestScoringPayload(t *testing.T) {
	b := scoring.Score(scoring.Input{
		Baseline:   model.Baseline{ReviewCount: model.IntPtr(120), Rating: model.FloatPtr(4.6), HasWebsite: true},
		Enrichment: &model.ExtractionResult{VetCount: model.IntPtr(5), VetCountConfidence: model.ConfidenceLow},
	})
	props, err := ScoringPayload(b, fixedNow)
	require.NoError(t, err)

	var decoded scoring.Breakdown
	require.NoError(t, json.Unmarshal([]byte(notion.Text(props, PropScoreBreakdown)), &decoded))
	assert.Equal(t, b.FinalScore, decoded.FinalScore)
	assert.Equal(t, string(b.Tier), notion.Select(props, PropPriorityTier))
	assert.Equal(t, "Sweet Spot", notion.Select(props, PropSizeCategory))
	assert.Equal(t, b.Flags, notion.MultiSelect(props, PropConfidenceFlags))
	assert.Equal(t, "Scored", notion.Select(props, PropScoringStatus))
}
