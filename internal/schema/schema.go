// Package schema describes the facetable fields of the document collection
// and how their values are normalized for identity and ordering.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// Type is the value type of a field.
type Type string

const (
	TypeString Type = "string"
	TypeText   Type = "text"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeDate   Type = "date"
	TypeBool   Type = "bool"
)

// Field is one schema field.
type Field struct {
	Name    string
	Type    Type
	Indexed bool
	Multi   bool
}

// Numeric reports whether range facets can bucket the field.
func (f Field) Numeric() bool {
	return f.Type == TypeInt || f.Type == TypeFloat || f.Type == TypeDate
}

// Comparable maps a stored value to a string whose byte order matches the
// field's natural order. Values that do not parse sort after every valid
// value, in raw order.
func (f Field) Comparable(value string) string {
	switch f.Type {
	case TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return unparsable(value)
		}
		return sortableUint(uint64(n) ^ (1 << 63))
	case TypeFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(v) {
			return unparsable(value)
		}
		return sortableUint(sortableFloatBits(v))
	case TypeDate:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
		if err != nil {
			return unparsable(value)
		}
		return sortableUint(uint64(t.UnixNano()) ^ (1 << 63))
	case TypeBool:
		return strings.ToLower(strings.TrimSpace(value))
	default:
		return value
	}
}

// Number parses a value of a numeric field as float64; dates become unix
// milliseconds.
func (f Field) Number(value string) (float64, error) {
	value = strings.TrimSpace(value)
	switch f.Type {
	case TypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		return float64(n), err
	case TypeFloat:
		return strconv.ParseFloat(value, 64)
	case TypeDate:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return 0, err
		}
		return float64(t.UnixMilli()), nil
	default:
		return 0, fmt.Errorf("field %q of type %s is not numeric", f.Name, f.Type)
	}
}

func sortableFloatBits(v float64) uint64 {
	b := math.Float64bits(v)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | (1 << 63)
}

func sortableUint(u uint64) string {
	return fmt.Sprintf("%016x", u)
}

// unparsable values are prefixed with a byte above every hex digit.
func unparsable(value string) string {
	return "~" + value
}

// Schema is an immutable set of fields.
type Schema struct {
	fields map[string]Field
}

// New validates and indexes fields.
func New(fields []Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field with empty name: %w", apperrors.ErrInvalidInput)
		}
		switch f.Type {
		case TypeString, TypeText, TypeInt, TypeFloat, TypeDate, TypeBool:
		case "":
			f.Type = TypeString
		default:
			return nil, fmt.Errorf("schema field %q: unknown type %q: %w", f.Name, f.Type, apperrors.ErrInvalidInput)
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, fmt.Errorf("schema field %q defined twice: %w", f.Name, apperrors.ErrInvalidInput)
		}
		s.fields[f.Name] = f
	}
	return s, nil
}

// FromConfig builds a schema from the static YAML field list.
func FromConfig(cfg config.SchemaConfig) (*Schema, error) {
	fields := make([]Field, len(cfg.Fields))
	for i, fc := range cfg.Fields {
		fields[i] = Field{Name: fc.Name, Type: Type(fc.Type), Indexed: fc.Indexed, Multi: fc.Multi}
	}
	return New(fields)
}

// Lookup returns the named field.
func (s *Schema) Lookup(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns every field sorted by name.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Normalizer returns the comparable-form function for name. Unknown fields
// compare by raw value.
func (s *Schema) Normalizer(name string) facet.Normalizer {
	f, ok := s.fields[name]
	if !ok || f.Type == TypeString || f.Type == TypeText {
		return nil
	}
	return f.Comparable
}

// Facetable checks that name can be faceted on.
func (s *Schema) Facetable(name string) error {
	f, ok := s.fields[name]
	if !ok {
		return apperrors.Configurationf("field %q is not defined", name)
	}
	if !f.Indexed {
		return apperrors.Configurationf("field %q is not indexed", name)
	}
	return nil
}
