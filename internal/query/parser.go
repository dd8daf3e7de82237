// Package query parses the small boolean query language used for the main
// query, filter queries and facet queries.
//
//	*:*                      every document
//	field:value              exact value match
//	field:"two words"        quoted value
//	field:[10 TO 20}         range, '[' ']' inclusive, '{' '}' exclusive, '*' open
//	word                     token match against text fields
//
// Clauses combine with AND (default) or OR; NOT or a leading '-' excludes the
// next clause.
package query

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

// Range bounds a clause; empty bounds are open.
type Range struct {
	Lo, Hi       string
	IncLo, IncHi bool
}

// Clause is one match condition.
type Clause struct {
	Field string
	Value string
	All   bool
	Range *Range
}

func (c Clause) String() string {
	switch {
	case c.All:
		return "*:*"
	case c.Range != nil:
		lb, rb := "{", "}"
		if c.Range.IncLo {
			lb = "["
		}
		if c.Range.IncHi {
			rb = "]"
		}
		lo, hi := c.Range.Lo, c.Range.Hi
		if lo == "" {
			lo = "*"
		}
		if hi == "" {
			hi = "*"
		}
		return fmt.Sprintf("%s:%s%s TO %s%s", c.Field, lb, lo, hi, rb)
	case c.Field == "":
		return c.Value
	default:
		return c.Field + ":" + c.Value
	}
}

// QueryPlan is a parsed query.
type QueryPlan struct {
	Clauses  []Clause
	Exclude  []Clause
	Type     QueryType
	RawQuery string
}

// MatchAll reports whether the plan selects every document.
func (p *QueryPlan) MatchAll() bool {
	if len(p.Exclude) > 0 {
		return false
	}
	if len(p.Clauses) == 0 {
		return true
	}
	for _, c := range p.Clauses {
		if c.All {
			if p.Type == QueryOR {
				return true
			}
		} else if p.Type == QueryAND {
			return false
		}
	}
	return p.Type == QueryAND
}

// Parse parses query. An empty query matches every document.
func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Clauses:  make([]Clause, 0),
		Exclude:  make([]Clause, 0),
		Type:     QueryAND,
		RawQuery: query,
	}
	words, err := split(query)
	if err != nil {
		return nil, err
	}
	excludeNext := false
	for _, word := range words {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		if strings.HasPrefix(word, "-") && len(word) > 1 {
			excludeNext = true
			word = word[1:]
		}
		clause, err := parseClause(word)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		if excludeNext {
			plan.Exclude = append(plan.Exclude, clause)
			excludeNext = false
		} else {
			plan.Clauses = append(plan.Clauses, clause)
		}
	}
	if excludeNext {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "query %q: dangling NOT", query)
	}
	return plan, nil
}

// split breaks query on whitespace outside quotes and range brackets.
func split(query string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inQuote bool
		inRange bool
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range query {
		switch {
		case inQuote:
			cur.WriteRune(r)
			if r == '"' {
				inQuote = false
			}
		case inRange:
			cur.WriteRune(r)
			if r == ']' || r == '}' {
				inRange = false
			}
		case r == '"':
			inQuote = true
			cur.WriteRune(r)
		case r == '[' || r == '{':
			inRange = true
			cur.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "query %q: unterminated quote", query)
	}
	if inRange {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "query %q: unterminated range", query)
	}
	flush()
	return words, nil
}

func parseClause(word string) (Clause, error) {
	if word == "*:*" || word == "*" {
		return Clause{All: true}, nil
	}
	field, value, ok := strings.Cut(word, ":")
	if !ok || strings.HasPrefix(word, "\"") {
		return Clause{Value: unquote(word)}, nil
	}
	if field == "" || value == "" {
		return Clause{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "malformed clause %q", word)
	}
	if value[0] == '[' || value[0] == '{' {
		r, err := parseRange(value)
		if err != nil {
			return Clause{}, err
		}
		return Clause{Field: field, Range: r}, nil
	}
	return Clause{Field: field, Value: unquote(value)}, nil
}

func parseRange(s string) (*Range, error) {
	last := s[len(s)-1]
	if len(s) < 2 || (last != ']' && last != '}') {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "malformed range %q", s)
	}
	parts := strings.Fields(s[1 : len(s)-1])
	if len(parts) != 3 || !strings.EqualFold(parts[1], "TO") {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "malformed range %q", s)
	}
	r := &Range{IncLo: s[0] == '[', IncHi: last == ']'}
	if parts[0] != "*" {
		r.Lo = unquote(parts[0])
	}
	if parts[2] != "*" {
		r.Hi = unquote(parts[2])
	}
	return r, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
