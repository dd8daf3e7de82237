package facet

import (
	"math/bits"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// AddCount adds b to a, failing with ErrOverflow instead of wrapping.
func AddCount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return a, apperrors.ErrOverflow
	}
	return sum, nil
}

// QueryCounter sums a query facet across shards.
type QueryCounter struct {
	Spec  QuerySpec
	count uint64
}

func NewQueryCounter(spec QuerySpec) *QueryCounter {
	return &QueryCounter{Spec: spec}
}

func (q *QueryCounter) Add(count uint64) error {
	sum, err := AddCount(q.count, count)
	if err != nil {
		return err
	}
	q.count = sum
	return nil
}

func (q *QueryCounter) Count() uint64 { return q.count }
