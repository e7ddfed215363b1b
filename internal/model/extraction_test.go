package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DropsOutOfRangeVetCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count int
		keep  bool
	}{
		{"zero", 0, false},
		{"min", 1, true},
		{"max", 50, true},
		{"over", 51, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &ExtractionResult{VetCount: IntPtr(tt.count), VetCountConfidence: ConfidenceHigh}
			r.Normalize()
			if tt.keep {
				require.NotNil(t, r.VetCount)
				assert.Equal(t, tt.count, *r.VetCount)
				assert.Equal(t, ConfidenceHigh, r.VetCountConfidence)
			} else {
				assert.Nil(t, r.VetCount)
				assert.Empty(t, r.VetCountConfidence)
			}
		})
	}
}

func TestNormalize_UnknownConfidenceBecomesLow(t *testing.T) {
	t.Parallel()
	r := &ExtractionResult{VetCount: IntPtr(4), VetCountConfidence: "certain"}
	r.Normalize()
	assert.Equal(t, ConfidenceLow, r.VetCountConfidence)
}

func TestNormalize_DecisionMaker(t *testing.T) {
	t.Parallel()

	r := &ExtractionResult{DecisionMaker: &DecisionMaker{Name: " Dr. Jane Smith ", Email: "not-an-email"}}
	r.Normalize()
	require.NotNil(t, r.DecisionMaker)
	assert.Equal(t, "Dr. Jane Smith", r.DecisionMaker.Name)
	assert.Empty(t, r.DecisionMaker.Email)
	assert.True(t, r.HasDecisionMakerName())
	assert.False(t, r.HasDecisionMakerEmail())

	empty := &ExtractionResult{DecisionMaker: &DecisionMaker{Email: "bogus"}}
	empty.Normalize()
	assert.Nil(t, empty.DecisionMaker)
}

func TestNormalize_TruncatesLists(t *testing.T) {
	t.Parallel()

	r := &ExtractionResult{
		PersonalizationContext: []string{"a", "b", "", "B", "c", "d"},
		SpecialtyServices:      []string{" surgery ", "dental"},
		PracticePhilosophy:     strings.Repeat("é", 600),
	}
	r.Normalize()
	assert.Equal(t, []string{"a", "b", "c"}, r.PersonalizationContext)
	assert.Equal(t, []string{"surgery", "dental"}, r.SpecialtyServices)
	assert.Equal(t, MaxPhilosophyChars, len([]rune(r.PracticePhilosophy)))
	assert.Nil(t, r.Awards)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10))
	assert.Equal(t, "", TruncateRunes("héllo", 0))
}

func TestCandidateIsEnriched(t *testing.T) {
	t.Parallel()
	c := Candidate{Enrichment: &ExtractionResult{}, EnrichmentStatus: EnrichmentCompleted}
	assert.True(t, c.IsEnriched())
	c.EnrichmentStatus = EnrichmentFailed
	assert.False(t, c.IsEnriched())
	assert.False(t, Candidate{EnrichmentStatus: EnrichmentCompleted}.IsEnriched())
}

func TestSuccessfulPages(t *testing.T) {
	t.Parallel()
	pages := []WebPageResult{
		{URL: "https://a.com", Success: true},
		{URL: "https://a.com/team", Success: false, Error: "timeout"},
		{URL: "https://a.com/about", Success: true},
	}
	got := SuccessfulPages(pages)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.com/about", got[1].URL)
}
