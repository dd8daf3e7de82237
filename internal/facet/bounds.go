package facet

import (
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// MaxRangeBuckets caps the bucket count a single range facet may produce.
const MaxRangeBuckets = 10000

// RangeBound is one [Lo, Hi) bucket of a range facet. Date bounds are unix
// milliseconds.
type RangeBound struct {
	Key string
	Lo  float64
	Hi  float64
}

// Bounds expands start, end and gap into buckets. Without HardEnd the last
// bucket may extend past End.
func (s RangeSpec) Bounds() ([]RangeBound, error) {
	if s.Date {
		return s.dateBounds()
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(s.Start), 64)
	if err != nil {
		return nil, apperrors.Configurationf("range facet %q: bad start %q", s.FacetKey, s.Start)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(s.End), 64)
	if err != nil {
		return nil, apperrors.Configurationf("range facet %q: bad end %q", s.FacetKey, s.End)
	}
	gap, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(s.Gap), "+"), 64)
	if err != nil || math.IsNaN(gap) || math.IsInf(gap, 0) || gap <= 0 {
		return nil, apperrors.Configurationf("range facet %q: gap %q must be a positive number", s.FacetKey, s.Gap)
	}
	if end < start {
		return nil, apperrors.Configurationf("range facet %q: end %s before start %s", s.FacetKey, s.End, s.Start)
	}
	var bounds []RangeBound
	for i := 0; ; i++ {
		lo := start + float64(i)*gap
		if lo >= end {
			break
		}
		if len(bounds) == MaxRangeBuckets {
			return nil, apperrors.Configurationf("range facet %q produces more than %d buckets", s.FacetKey, MaxRangeBuckets)
		}
		hi := start + float64(i+1)*gap
		if hi <= lo {
			return nil, apperrors.Configurationf("range facet %q: gap %q too small for start %q", s.FacetKey, s.Gap, s.Start)
		}
		if s.HardEnd && hi > end {
			hi = end
		}
		bounds = append(bounds, RangeBound{Key: strconv.FormatFloat(lo, 'f', -1, 64), Lo: lo, Hi: hi})
	}
	return bounds, nil
}

func (s RangeSpec) dateBounds() ([]RangeBound, error) {
	start, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s.Start))
	if err != nil {
		return nil, apperrors.Configurationf("date facet %q: bad start %q", s.FacetKey, s.Start)
	}
	end, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s.End))
	if err != nil {
		return nil, apperrors.Configurationf("date facet %q: bad end %q", s.FacetKey, s.End)
	}
	step, err := parseDateGap(s.Gap)
	if err != nil {
		return nil, apperrors.Configurationf("date facet %q: %v", s.FacetKey, err)
	}
	if end.Before(start) {
		return nil, apperrors.Configurationf("date facet %q: end %s before start %s", s.FacetKey, s.End, s.Start)
	}
	start, end = start.UTC(), end.UTC()
	var bounds []RangeBound
	for lo := start; lo.Before(end); {
		if len(bounds) == MaxRangeBuckets {
			return nil, apperrors.Configurationf("date facet %q produces more than %d buckets", s.FacetKey, MaxRangeBuckets)
		}
		hi := step(lo)
		if !hi.After(lo) {
			return nil, apperrors.Configurationf("date facet %q: gap %q does not advance", s.FacetKey, s.Gap)
		}
		if s.HardEnd && hi.After(end) {
			hi = end
		}
		bounds = append(bounds, RangeBound{
			Key: lo.Format(time.RFC3339Nano),
			Lo:  float64(lo.UnixMilli()),
			Hi:  float64(hi.UnixMilli()),
		})
		lo = hi
	}
	return bounds, nil
}

// parseDateGap accepts "+<n><UNIT>" with calendar units such as DAY or MONTH,
// or a Go duration like "36h".
func parseDateGap(gap string) (func(time.Time) time.Time, error) {
	g := strings.TrimPrefix(strings.TrimSpace(gap), "+")
	digits := 0
	for digits < len(g) && g[digits] >= '0' && g[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(g) {
		n, err := strconv.Atoi(g[:digits])
		if err == nil && n > 0 {
			unit := strings.TrimSuffix(strings.ToUpper(g[digits:]), "S")
			switch unit {
			case "YEAR":
				return func(t time.Time) time.Time { return t.AddDate(n, 0, 0) }, nil
			case "MONTH":
				return func(t time.Time) time.Time { return t.AddDate(0, n, 0) }, nil
			case "WEEK":
				return func(t time.Time) time.Time { return t.AddDate(0, 0, 7*n) }, nil
			case "DAY", "DATE":
				return func(t time.Time) time.Time { return t.AddDate(0, 0, n) }, nil
			case "HOUR":
				return fixedStep(time.Duration(n) * time.Hour), nil
			case "MINUTE":
				return fixedStep(time.Duration(n) * time.Minute), nil
			case "SECOND":
				return fixedStep(time.Duration(n) * time.Second), nil
			case "MILLISECOND", "MILLI":
				return fixedStep(time.Duration(n) * time.Millisecond), nil
			}
		}
	}
	d, err := time.ParseDuration(g)
	if err != nil || d <= 0 {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, 400, "bad date gap %q", gap)
	}
	return fixedStep(d), nil
}

func fixedStep(d time.Duration) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.Add(d) }
}
