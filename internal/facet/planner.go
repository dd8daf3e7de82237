package facet

import "math"

// Plan holds the limit and mincount every shard is asked to use in the first
// round for one field facet.
type Plan struct {
	InitialLimit    int
	InitialMinCount int
}

// PlanField computes the first-round shard parameters for s when the request
// is spread over numShards shards.
//
// Count-sorted bounded facets overrequest the limit and drop the shard
// mincount to zero so that every shard reports a usable upper bound for the
// values it leaves out. Index-sorted facets only need a relaxed mincount: a
// value reaching minCount overall must reach ceil(minCount/n) on at least one
// shard.
func PlanField(s FieldSpec, numShards int) Plan {
	p := Plan{InitialLimit: s.Limit, InitialMinCount: s.MinCount}
	if s.Limit > 0 {
		p.InitialLimit = s.End()
	}

	switch s.Sort {
	case SortCount:
		if s.Limit > 0 {
			p.InitialLimit = overrequest(s)
			p.InitialMinCount = 0
		} else {
			p.InitialMinCount = min(s.MinCount, 1)
		}
	case SortIndex:
		if s.MinCount > 1 {
			n := max(numShards, 1)
			p.InitialMinCount = (s.MinCount + n - 1) / n
			if s.Limit > 0 {
				p.InitialLimit = overrequest(s)
			}
		}
	}
	return p
}

func overrequest(s FieldSpec) int {
	base := s.End()
	over := math.Floor(float64(base)*s.OverrequestRatio) + float64(s.OverrequestCount)
	if over > math.MaxInt32 {
		over = math.MaxInt32
	}
	return max(base, int(over))
}
