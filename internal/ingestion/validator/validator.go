// Package validator checks ingestion requests against the facet schema and
// reports every offending field at once.
package validator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
)

const (
	maxIDLength    = 512
	maxValueLength = 32768
	maxValues      = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the document id and every field value
// against s.
func ValidateIngestRequest(req *ingestion.IngestRequest, s *schema.Schema) error {
	errs := make(map[string]string)

	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(req.IdempotencyKey) > 255 {
		errs["idempotency_key"] = "idempotency key must be at most 255 characters"
	}
	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}
	for name, values := range req.Fields {
		if msg := checkField(s, name, values); msg != "" {
			errs["fields."+name] = msg
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkField(s *schema.Schema, name string, values []string) string {
	f, ok := s.Lookup(name)
	if !ok {
		return "field is not defined in the schema"
	}
	if len(values) == 0 {
		return "at least one value is required"
	}
	if len(values) > maxValues {
		return fmt.Sprintf("at most %d values allowed", maxValues)
	}
	if !f.Multi && len(values) > 1 {
		return fmt.Sprintf("field is single valued, got %d values", len(values))
	}
	for _, v := range values {
		if len(v) > maxValueLength {
			return fmt.Sprintf("values must be at most %d characters", maxValueLength)
		}
		switch {
		case f.Numeric():
			if _, err := f.Number(v); err != nil {
				return fmt.Sprintf("%q is not a valid %s", v, f.Type)
			}
		case f.Type == schema.TypeBool:
			if _, err := strconv.ParseBool(strings.TrimSpace(v)); err != nil {
				return fmt.Sprintf("%q is not a valid bool", v)
			}
		}
	}
	return ""
}
