package schema

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

func sortedBy(f Field, values []string) []string {
	out := append([]string(nil), values...)
	sort.Slice(out, func(i, j int) bool { return f.Comparable(out[i]) < f.Comparable(out[j]) })
	return out
}

func TestComparableOrdersNaturally(t *testing.T) {
	tests := []struct {
		field Field
		in    []string
		want  []string
	}{
		{Field{Type: TypeInt}, []string{"10", "-3", "2", "0", "-20"}, []string{"-20", "-3", "0", "2", "10"}},
		{Field{Type: TypeFloat}, []string{"1.5", "-0.5", "10", "-11.25", "0"}, []string{"-11.25", "-0.5", "0", "1.5", "10"}},
		{Field{Type: TypeDate}, []string{"2024-02-01T00:00:00Z", "1999-12-31T23:59:59Z", "2024-01-15T00:00:00Z"},
			[]string{"1999-12-31T23:59:59Z", "2024-01-15T00:00:00Z", "2024-02-01T00:00:00Z"}},
		{Field{Type: TypeInt}, []string{"abc", "5", "-5"}, []string{"-5", "5", "abc"}},
		{Field{Type: TypeString}, []string{"b", "B", "a"}, []string{"B", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.field.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, sortedBy(tt.field, tt.in))
		})
	}
}

func TestComparableMergesEquivalentSpellings(t *testing.T) {
	f := Field{Type: TypeInt}
	assert.Equal(t, f.Comparable("7"), f.Comparable(" 07"))
	b := Field{Type: TypeBool}
	assert.Equal(t, b.Comparable("TRUE"), b.Comparable("true"))
}

func TestNumber(t *testing.T) {
	v, err := Field{Name: "n", Type: TypeInt}.Number("42")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	_, err = Field{Name: "s", Type: TypeString}.Number("42")
	assert.Error(t, err)
	d, err := Field{Name: "d", Type: TypeDate}.Number("1970-01-01T00:00:01Z")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, d)
}

func TestNewValidates(t *testing.T) {
	_, err := New([]Field{{Name: "a"}, {Name: "a"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = New([]Field{{Name: "a", Type: "blob"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = New([]Field{{Name: ""}})
	assert.Error(t, err)

	s, err := New([]Field{{Name: "a"}})
	require.NoError(t, err)
	f, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, TypeString, f.Type)
}

func TestFromConfigAndFacetable(t *testing.T) {
	s, err := FromConfig(config.SchemaConfig{Fields: []config.FieldConfig{
		{Name: "cat", Type: "string", Indexed: true},
		{Name: "price", Type: "float", Indexed: true},
		{Name: "notes", Type: "text"},
	}})
	require.NoError(t, err)

	assert.NoError(t, s.Facetable("cat"))
	assert.True(t, errors.Is(s.Facetable("notes"), apperrors.ErrConfiguration))
	assert.True(t, errors.Is(s.Facetable("nope"), apperrors.ErrConfiguration))

	assert.Nil(t, s.Normalizer("cat"))
	require.NotNil(t, s.Normalizer("price"))
	assert.Equal(t, []string{"cat", "notes", "price"}, []string{s.Fields()[0].Name, s.Fields()[1].Name, s.Fields()[2].Name})
}
