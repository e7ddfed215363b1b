package scoring

// Tier is the priority classification written back to the record store.
type Tier string

const (
	TierHot        Tier = "Hot"
	TierWarm       Tier = "Warm"
	TierCold       Tier = "Cold"
	TierOutOfScope Tier = "Out of Scope"
	TierPending    Tier = "Pending"
)

// Tier thresholds on the final score.
const (
	HotThreshold  = 80
	WarmThreshold = 50
	// OutOfScopeFloor is the score below which an extreme head count is
	// classified out of scope rather than cold.
	OutOfScopeFloor = 20
)

// SizeCategory buckets a practice by confirmed head count.
type SizeCategory string

const (
	SizeUnknown   SizeCategory = ""
	SizeSolo      SizeCategory = "Solo"
	SizeSmall     SizeCategory = "Small"
	SizeSweetSpot SizeCategory = "Sweet Spot"
	SizeLarge     SizeCategory = "Large"
	SizeCorporate SizeCategory = "Corporate"
)

// ClassifySize maps a head count to its category. nil is unknown.
func ClassifySize(count *int) SizeCategory {
	if count == nil {
		return SizeUnknown
	}
	switch n := *count; {
	case n <= 1:
		return SizeSolo
	case n == 2:
		return SizeSmall
	case n <= 8:
		return SizeSweetSpot
	case n <= 19:
		return SizeLarge
	default:
		return SizeCorporate
	}
}

// extreme reports whether the category is outside the serviceable range.
func (c SizeCategory) extreme() bool {
	return c == SizeSolo || c == SizeCorporate
}

// ClassifyTier assigns the priority tier. Candidates without enrichment are
// always Pending.
func ClassifyTier(final int, size SizeCategory, enriched bool) Tier {
	if !enriched {
		return TierPending
	}
	if size.extreme() && final < OutOfScopeFloor {
		return TierOutOfScope
	}
	switch {
	case final >= HotThreshold:
		return TierHot
	case final >= WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// Recommendation returns the outreach guidance for a tier.
func Recommendation(t Tier) string {
	switch t {
	case TierHot:
		return "Call immediately - high fit"
	case TierWarm:
		return "Schedule call soon - good fit"
	case TierCold:
		return "Research further or defer - low fit"
	case TierOutOfScope:
		return "Do not call - outside target profile"
	case TierPending:
		return "Awaiting enrichment data - score after enrichment completes"
	}
	return "Unknown priority tier"
}
