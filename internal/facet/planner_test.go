package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanField(t *testing.T) {
	tests := []struct {
		name   string
		spec   FieldSpec
		shards int
		want   Plan
	}{
		{
			name:   "count sort bounded overrequests",
			spec:   FieldSpec{Limit: 10, Sort: SortCount, MinCount: 3, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 4,
			want:   Plan{InitialLimit: 25, InitialMinCount: 0},
		},
		{
			name:   "offset joins the overrequest base",
			spec:   FieldSpec{Offset: 10, Limit: 10, Sort: SortCount, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 2,
			want:   Plan{InitialLimit: 40, InitialMinCount: 0},
		},
		{
			name:   "no overrequest still asks for offset plus limit",
			spec:   FieldSpec{Offset: 5, Limit: 10, Sort: SortCount},
			shards: 2,
			want:   Plan{InitialLimit: 15, InitialMinCount: 0},
		},
		{
			name:   "count sort unbounded keeps limit and caps mincount at one",
			spec:   FieldSpec{Limit: Unbounded, Sort: SortCount, MinCount: 5, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 3,
			want:   Plan{InitialLimit: Unbounded, InitialMinCount: 1},
		},
		{
			name:   "count sort unbounded mincount zero",
			spec:   FieldSpec{Limit: Unbounded, Sort: SortCount},
			shards: 3,
			want:   Plan{InitialLimit: Unbounded, InitialMinCount: 0},
		},
		{
			name:   "index sort low mincount passes through",
			spec:   FieldSpec{Offset: 2, Limit: 10, Sort: SortIndex, MinCount: 1, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 3,
			want:   Plan{InitialLimit: 12, InitialMinCount: 1},
		},
		{
			name:   "index sort high mincount splits across shards",
			spec:   FieldSpec{Limit: 10, Sort: SortIndex, MinCount: 10, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 3,
			want:   Plan{InitialLimit: 25, InitialMinCount: 4},
		},
		{
			name:   "index sort unbounded high mincount",
			spec:   FieldSpec{Limit: Unbounded, Sort: SortIndex, MinCount: 7},
			shards: 2,
			want:   Plan{InitialLimit: Unbounded, InitialMinCount: 4},
		},
		{
			name:   "zero limit stays zero",
			spec:   FieldSpec{Limit: 0, Sort: SortCount, MinCount: 2, OverrequestRatio: 1.5, OverrequestCount: 10},
			shards: 2,
			want:   Plan{InitialLimit: 0, InitialMinCount: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanField(tt.spec, tt.shards))
		})
	}
}

func TestPlanFieldOverrequestMonotonic(t *testing.T) {
	for _, ratio := range []float64{0, 0.5, 1, 1.5, 3} {
		for _, count := range []int{0, 1, 10} {
			for limit := 1; limit <= 200; limit += 7 {
				for _, offset := range []int{0, 3} {
					spec := FieldSpec{Offset: offset, Limit: limit, Sort: SortCount, OverrequestRatio: ratio, OverrequestCount: count}
					p := PlanField(spec, 5)
					assert.GreaterOrEqual(t, p.InitialLimit, limit, "ratio=%v count=%d limit=%d", ratio, count, limit)
					assert.GreaterOrEqual(t, p.InitialLimit, offset+limit)
				}
			}
		}
	}
}

func TestPlanFieldHugeLimitDoesNotWrap(t *testing.T) {
	p := PlanField(FieldSpec{Offset: 1 << 30, Limit: 1 << 30, Sort: SortCount, OverrequestRatio: 4, OverrequestCount: 10}, 2)
	assert.Greater(t, p.InitialLimit, 0)
}

func TestParseSort(t *testing.T) {
	for in, want := range map[string]SortOrder{"count": SortCount, "true": SortCount, "index": SortIndex, "false": SortIndex, " Index ": SortIndex} {
		got, err := ParseSort(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSort("random")
	assert.Error(t, err)
}
