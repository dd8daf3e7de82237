package facets

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

func benchCounter(b *testing.B, docs int) *Counter {
	b.Helper()
	s, err := schema.New([]schema.Field{
		{Name: "category", Type: schema.TypeString, Indexed: true},
		{Name: "brand", Type: schema.TypeString, Indexed: true},
		{Name: "price", Type: schema.TypeInt, Indexed: true},
	})
	if err != nil {
		b.Fatal(err)
	}
	store := index.NewStore(s)
	for i := 0; i < docs; i++ {
		err := store.Add(proto.Document{
			ID: fmt.Sprintf("doc-%d", i),
			Fields: map[string][]string{
				"category": {fmt.Sprintf("cat-%d", i%50)},
				"brand":    {fmt.Sprintf("brand-%d", i%500)},
				"price":    {strconv.Itoa(i % 1000)},
			},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	return New(store)
}

func BenchmarkCountFields(b *testing.B) {
	c := benchCounter(b, 10000)
	req := &proto.ShardFacetRequest{
		Query: "*:*",
		Fields: []proto.FieldFacetParams{
			{Key: "category", Field: "category", Limit: 20, Sort: "count"},
			{Key: "brand", Field: "brand", Limit: 40, Sort: "count", MinCount: 1},
		},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Count(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCountPivot(b *testing.B) {
	c := benchCounter(b, 10000)
	req := &proto.ShardFacetRequest{
		Query: "*:*",
		Pivots: []proto.PivotFacetParams{{
			Key: "category,brand",
			Levels: []proto.PivotLevelParams{
				{Field: "category", Limit: 10, Sort: "count", MinCount: 1},
				{Field: "brand", Limit: 5, Sort: "count", MinCount: 1},
			},
		}},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Count(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
