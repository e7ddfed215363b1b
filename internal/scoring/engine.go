// Package scoring computes the confidence-weighted lead score. Score is a
// pure function: it never reads the clock, randomness, or external state.
package scoring

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// Score caps.
const (
	EnrichedCap     = 120
	BaselineOnlyCap = 40
)

// Component maxima.
const (
	MaxPracticeSize  = 25
	MaxCallVolume    = 40
	MaxTechnology    = 15
	MaxBaseline      = 16
	MaxDecisionMaker = 10
)

// Component names, in breakdown order.
const (
	ComponentPracticeSize  = "practice_size"
	ComponentCallVolume    = "call_volume"
	ComponentTechnology    = "technology"
	ComponentBaseline      = "baseline"
	ComponentDecisionMaker = "decision_maker"
)

// highValueServices are matched case-insensitively as substrings of each
// specialty service.
var highValueServices = []string{
	"surgery", "dental", "oncology", "cardiology", "orthopedic", "boarding",
	"exotic", "rehabilitation", "emergency", "specialty", "ultrasound",
	"internal medicine",
}

// Input is everything Score depends on.
type Input struct {
	Baseline   model.Baseline
	Enrichment *model.ExtractionResult
	// Confidence is the overall reliability in [0, 1]. When nil it is
	// derived from the enrichment's head-count confidence tier.
	Confidence *float64
}

// InputFor builds a scoring input from a candidate record.
func InputFor(c model.Candidate) Input {
	in := Input{Baseline: c.Baseline}
	if c.IsEnriched() {
		in.Enrichment = c.Enrichment
	}
	return in
}

// Component is one additive part of the raw score.
type Component struct {
	Name    string   `json:"name"`
	Points  int      `json:"points"`
	Max     int      `json:"max"`
	Details []string `json:"details,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Flags   []string `json:"flags,omitempty"`

	// enrichmentPoints is the share of Points derived from enrichment data.
	enrichmentPoints int
}

// Penalty records a confidence multiplier below 1.0.
type Penalty struct {
	Multiplier float64 `json:"multiplier"`
	Before     int     `json:"before"`
	After      int     `json:"after"`
}

// Breakdown is the full scoring result. Encoding it to JSON is stable for
// identical inputs.
type Breakdown struct {
	Components     []Component  `json:"components"`
	RawScore       int          `json:"raw_score"`
	Cap            int          `json:"cap"`
	Confidence     float64      `json:"confidence"`
	Multiplier     float64      `json:"multiplier"`
	Penalty        *Penalty     `json:"penalty,omitempty"`
	FinalScore     int          `json:"final_score"`
	Tier           Tier         `json:"tier"`
	SizeCategory   SizeCategory `json:"size_category,omitempty"`
	TargetFit      bool         `json:"target_fit"`
	Enriched       bool         `json:"enriched"`
	Flags          []string     `json:"flags,omitempty"`
	Missing        []string     `json:"missing,omitempty"`
	Recommendation string       `json:"recommendation"`
}

// Component returns the named component, or false.
func (b Breakdown) Component(name string) (Component, bool) {
	for _, c := range b.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// ConfidenceFromTier converts a head-count confidence tier to a numeric
// confidence. An empty tier means 1.0.
func ConfidenceFromTier(t model.ConfidenceTier) float64 {
	switch t {
	case model.ConfidenceHigh:
		return 0.95
	case model.ConfidenceMedium:
		return 0.85
	case model.ConfidenceLow:
		return 0.6
	}
	return 1.0
}

// multiplierPercent returns the confidence multiplier as an integer percent.
func multiplierPercent(confidence float64) int {
	switch {
	case confidence >= 0.9:
		return 100
	case confidence >= 0.8:
		return 90
	default:
		return 70
	}
}

// Score computes the breakdown for in.
func Score(in Input) Breakdown {
	enriched := in.Enrichment != nil
	e := in.Enrichment

	b := Breakdown{Enriched: enriched, Cap: BaselineOnlyCap, Confidence: 1.0}
	if enriched {
		b.Cap = EnrichedCap
		if in.Confidence != nil {
			b.Confidence = *in.Confidence
		} else {
			b.Confidence = ConfidenceFromTier(e.VetCountConfidence)
		}
		b.SizeCategory = ClassifySize(e.VetCount)
		b.Components = []Component{
			practiceSize(e),
			callVolume(in.Baseline, e),
			technology(e),
			baseline(in.Baseline),
			decisionMaker(e),
		}
	} else {
		b.Components = []Component{
			callVolume(in.Baseline, nil),
			baseline(in.Baseline),
		}
		b.Missing = append(b.Missing,
			"not enriched: practice size not scored",
			"not enriched: technology not scored",
			"not enriched: decision maker not scored",
		)
	}

	sum := 0
	for _, c := range b.Components {
		sum += c.Points
		b.Missing = append(b.Missing, c.Missing...)
	}
	b.RawScore = clamp(sum, b.Cap)

	pct := 100
	if enriched {
		pct = multiplierPercent(b.Confidence)
	}
	b.Multiplier = float64(pct) / 100
	// Half-up on non-negative integers, so exact for every raw score.
	b.FinalScore = clamp((b.RawScore*pct+50)/100, b.Cap)

	if pct < 100 {
		b.Penalty = &Penalty{Multiplier: b.Multiplier, Before: b.RawScore, After: b.FinalScore}
	}
	switch pct {
	case 90:
		b.Flags = append(b.Flags, fmt.Sprintf("Medium confidence enrichment data (penalty: %.1fx)", b.Multiplier))
	case 70:
		b.Flags = append(b.Flags, fmt.Sprintf("Low confidence enrichment data (penalty: %.1fx)", b.Multiplier))
		for i := range b.Components {
			c := &b.Components[i]
			if c.enrichmentPoints > 0 {
				c.Flags = append(c.Flags, "low_confidence")
				b.Flags = append(b.Flags, "Low confidence: "+c.Name)
			}
		}
	}
	if enriched {
		if e.VetCount == nil {
			b.Flags = append(b.Flags, "Missing vet count - practice size not scored")
		}
		if e.VetCountCarriedOver() {
			b.Flags = append(b.Flags, fmt.Sprintf("Vet count carried over from a previous extraction (%s)",
				e.VetCountAt.Format("2006-01-02")))
		}
		if !e.HasDecisionMakerName() {
			b.Flags = append(b.Flags, "No decision maker identified")
		}
	}
	if in.Baseline.Rating == nil {
		b.Flags = append(b.Flags, "Missing Google rating")
	}

	b.Tier = ClassifyTier(b.FinalScore, b.SizeCategory, enriched)
	b.TargetFit = b.SizeCategory == SizeSweetSpot && b.FinalScore >= WarmThreshold
	b.Recommendation = Recommendation(b.Tier)
	return b
}

func practiceSize(e *model.ExtractionResult) Component {
	c := Component{Name: ComponentPracticeSize, Max: MaxPracticeSize}
	if e.VetCount == nil {
		c.Missing = []string{"vet_count_total missing: practice size scored 0"}
		return c
	}
	n := *e.VetCount
	switch {
	case n >= 3 && n <= 8:
		c.Points = 25
		c.Details = append(c.Details, fmt.Sprintf("%d vets: sweet spot (+25)", n))
	case n == 2 || n == 9:
		c.Points = 15
		c.Details = append(c.Details, fmt.Sprintf("%d vets: adjacent to sweet spot (+15)", n))
	default:
		c.Points = 5
		c.Details = append(c.Details, fmt.Sprintf("%d vets: outside sweet spot (+5)", n))
	}
	if e.VetCountCarriedOver() {
		c.Details = append(c.Details, "count carried over from "+e.VetCountAt.Format("2006-01-02"))
	}
	c.enrichmentPoints = c.Points
	return c
}

// callVolume combines review volume with the enrichment bonuses. With e nil
// only the baseline-derived parts apply.
func callVolume(base model.Baseline, e *model.ExtractionResult) Component {
	c := Component{Name: ComponentCallVolume, Max: MaxCallVolume}

	if base.ReviewCount == nil {
		c.Missing = append(c.Missing, "review_count missing: review volume scored 0")
	} else {
		r := *base.ReviewCount
		pts := 0
		switch {
		case r >= 100:
			pts = 20
		case r >= 50:
			pts = 12
		case r >= 20:
			pts = 5
		}
		c.Points += pts
		c.Details = append(c.Details, fmt.Sprintf("%d reviews (+%d)", r, pts))
		if pts == 0 {
			c.Missing = append(c.Missing, fmt.Sprintf("%d reviews below 20: review volume scored 0", r))
		}
	}
	if base.MultipleLocations {
		c.Points += 10
		c.Details = append(c.Details, "multiple locations (+10)")
	} else {
		c.Missing = append(c.Missing, "single location: location bonus scored 0")
	}

	if e == nil {
		c.Missing = append(c.Missing, "not enriched: emergency and service bonuses not scored")
	} else {
		if e.Emergency24x7 {
			c.Points += 10
			c.enrichmentPoints += 10
			c.Details = append(c.Details, "24/7 emergency (+10)")
		} else {
			c.Missing = append(c.Missing, "no 24/7 emergency: emergency bonus scored 0")
		}
		if svc, ok := highValueService(e.SpecialtyServices); ok {
			c.Points += 10
			c.enrichmentPoints += 10
			c.Details = append(c.Details, fmt.Sprintf("high-value service %q (+10)", svc))
		} else {
			c.Missing = append(c.Missing, "no high-value service: service bonus scored 0")
		}
	}

	if c.Points > c.Max {
		c.enrichmentPoints -= min(c.enrichmentPoints, c.Points-c.Max)
		c.Points = c.Max
	}
	return c
}

func highValueService(services []string) (string, bool) {
	for _, s := range services {
		lower := strings.ToLower(s)
		for _, kw := range highValueServices {
			if strings.Contains(lower, kw) {
				return s, true
			}
		}
	}
	return "", false
}

func technology(e *model.ExtractionResult) Component {
	c := Component{Name: ComponentTechnology, Max: MaxTechnology}
	if e.OnlineBooking {
		c.Points += 10
		c.Details = append(c.Details, "online booking (+10)")
	} else {
		c.Missing = append(c.Missing, "no online booking: booking bonus scored 0")
	}
	if e.PatientPortal || e.Telemedicine {
		c.Points += 5
		c.Details = append(c.Details, "patient portal or telemedicine (+5)")
	} else {
		c.Missing = append(c.Missing, "no patient portal or telemedicine: portal bonus scored 0")
	}
	c.enrichmentPoints = c.Points
	return c
}

func baseline(base model.Baseline) Component {
	c := Component{Name: ComponentBaseline, Max: MaxBaseline}
	if base.Rating == nil {
		c.Missing = append(c.Missing, "rating missing: rating scored 0")
	} else {
		r := *base.Rating
		pts := 0
		switch {
		case r >= 4.5:
			pts = 10
		case r >= 4.0:
			pts = 6
		case r >= 3.5:
			pts = 3
		}
		c.Points += pts
		c.Details = append(c.Details, fmt.Sprintf("rating %.1f (+%d)", r, pts))
		if pts == 0 {
			c.Missing = append(c.Missing, fmt.Sprintf("rating %.1f below 3.5: rating scored 0", r))
		}
	}
	if base.HasWebsite {
		c.Points += 6
		c.Details = append(c.Details, "website present (+6)")
	} else {
		c.Missing = append(c.Missing, "website missing: website bonus scored 0")
	}
	return c
}

func decisionMaker(e *model.ExtractionResult) Component {
	c := Component{Name: ComponentDecisionMaker, Max: MaxDecisionMaker}
	switch {
	case e.HasDecisionMakerName() && e.HasDecisionMakerEmail():
		c.Points = 10
		c.Details = append(c.Details, "name and email (+10)")
	case e.HasDecisionMakerName():
		c.Points = 5
		c.Details = append(c.Details, "name only (+5)")
		c.Missing = append(c.Missing, "decision maker email missing")
	default:
		c.Missing = append(c.Missing, "decision maker missing: scored 0")
	}
	c.enrichmentPoints = c.Points
	return c
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
