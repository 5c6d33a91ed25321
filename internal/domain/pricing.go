package domain

// Tier is one row of tiered pricing, selected by matching a request's
// input/output token counts against half-open ranges. -1 as a bound means
// unbounded on that side.
type Tier struct {
	Index           int
	InMin, InMax    int64
	OutMin, OutMax  int64
	InPrice         float64 // per 1e6 input tokens
	OutPrice        float64 // per 1e6 output tokens
	CacheOK         bool
	CacheReadPrice  float64 // per 1e6 cached tokens, only applied when CacheOK
	CacheWritePrice float64 // per 1e6 tokens written to cache, optional
}

func inBounds(v, min, max int64) bool {
	if min >= 0 && v <= min {
		return false
	}
	if max >= 0 && v > max {
		return false
	}
	return true
}

// Matches reports whether this tier's ranges admit the given token counts.
func (t Tier) Matches(inTok, outTok int64) bool {
	return inBounds(inTok, t.InMin, t.InMax) && inBounds(outTok, t.OutMin, t.OutMax)
}

// PricingConfig is a model's billing configuration: either tiered (a set of
// Tier rows, matched by token-count range) or hourly (a flat per-hour
// price applied to runtime interval overlap).
type PricingConfig struct {
	ModelName  string
	UseTiered  bool
	Tiers      []Tier // sorted by Index when read back
	HourlyRate float64
}

// SelectTier returns the lowest-indexed tier matching the request, or nil
// if no tier matches (the request then contributes zero cost).
func (p *PricingConfig) SelectTier(inTok, outTok int64) *Tier {
	var best *Tier
	for i := range p.Tiers {
		t := &p.Tiers[i]
		if !t.Matches(inTok, outTok) {
			continue
		}
		if best == nil || t.Index < best.Index {
			best = t
		}
	}
	return best
}

// EvaluateTiered computes the cost of a single request under tiered
// pricing. promptTokens is the freshly-computed prompt_n; cacheTokens is
// cache_n. Returns 0 if no tier matches.
func (p *PricingConfig) EvaluateTiered(rec RequestRecord) float64 {
	t := p.SelectTier(rec.InputTokens, rec.OutputTokens)
	if t == nil {
		return 0
	}
	cost := float64(rec.PromptTokens)*t.InPrice/1e6 + float64(rec.OutputTokens)*t.OutPrice/1e6
	if t.CacheOK {
		cost += float64(rec.CacheTokens) * t.CacheReadPrice / 1e6
	}
	return cost
}

// EvaluateHourly computes the cost attributable to one runtime interval's
// overlap with [t0, t1] under hourly pricing.
func (p *PricingConfig) EvaluateHourly(interval RuntimeInterval, t0, t1 float64) float64 {
	seconds := interval.IntersectSeconds(t0, t1)
	return seconds / 3600 * p.HourlyRate
}
