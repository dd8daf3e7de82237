// Package index holds one shard's documents in memory: a term dictionary per
// field with roaring postings, plus the bookkeeping needed to replace and
// delete documents.
package index

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// Term is one dictionary entry. Key orders and identifies the term; Value is
// the form reported in facet results.
type Term struct {
	Key   string
	Value string
	Docs  *roaring.Bitmap
}

type fieldIndex struct {
	field   schema.Field
	terms   map[string]*Term
	sorted  []*Term
	present *roaring.Bitmap
}

func newFieldIndex(f schema.Field) *fieldIndex {
	return &fieldIndex{
		field:   f,
		terms:   make(map[string]*Term),
		present: roaring.New(),
	}
}

func (fi *fieldIndex) add(key, value string, doc uint32) {
	t, ok := fi.terms[key]
	if !ok {
		t = &Term{Key: key, Value: value, Docs: roaring.New()}
		fi.terms[key] = t
		i := sort.Search(len(fi.sorted), func(i int) bool { return fi.sorted[i].Key >= key })
		fi.sorted = append(fi.sorted, nil)
		copy(fi.sorted[i+1:], fi.sorted[i:])
		fi.sorted[i] = t
	}
	t.Docs.Add(doc)
	fi.present.Add(doc)
}

func (fi *fieldIndex) remove(key string, doc uint32) {
	t, ok := fi.terms[key]
	if !ok {
		return
	}
	t.Docs.Remove(doc)
	if !t.Docs.IsEmpty() {
		return
	}
	delete(fi.terms, key)
	i := sort.Search(len(fi.sorted), func(i int) bool { return fi.sorted[i].Key >= key })
	if i < len(fi.sorted) && fi.sorted[i] == t {
		fi.sorted = append(fi.sorted[:i], fi.sorted[i+1:]...)
	}
}

type storedDoc struct {
	id   string
	keys map[string][]string
}

// Store is a single shard's in-memory index.
type Store struct {
	mu       sync.RWMutex
	schema   *schema.Schema
	analyzer tokenizer.Analyzer
	ids      map[string]uint32
	docs     []*storedDoc
	live     *roaring.Bitmap
	fields   map[string]*fieldIndex
	logger   *slog.Logger
}

// NewStore creates an empty store. Fields missing from s are indexed as
// plain strings.
func NewStore(s *schema.Schema) *Store {
	return &Store{
		schema:   s,
		analyzer: tokenizer.Default,
		ids:      make(map[string]uint32),
		live:     roaring.New(),
		fields:   make(map[string]*fieldIndex),
		logger:   slog.Default().With("component", "shard-index"),
	}
}

func (s *Store) fieldFor(name string) schema.Field {
	if s.schema != nil {
		if f, ok := s.schema.Lookup(name); ok {
			return f
		}
	}
	return schema.Field{Name: name, Type: schema.TypeString, Indexed: true, Multi: true}
}

// analyze returns the dictionary keys and display values for one stored
// value of f.
func (s *Store) analyze(f schema.Field, raw string) ([]string, []string, error) {
	switch f.Type {
	case schema.TypeText:
		terms := s.analyzer.Terms(raw)
		return terms, terms, nil
	case schema.TypeString:
		return []string{raw}, []string{raw}, nil
	case schema.TypeBool:
		v := strings.ToLower(strings.TrimSpace(raw))
		if v != "true" && v != "false" {
			return nil, nil, fmt.Errorf("field %q: %q is not a boolean: %w", f.Name, raw, apperrors.ErrInvalidInput)
		}
		return []string{v}, []string{v}, nil
	default:
		v := strings.TrimSpace(raw)
		if _, err := f.Number(v); err != nil {
			return nil, nil, fmt.Errorf("field %q: %q is not a valid %s: %w", f.Name, raw, f.Type, apperrors.ErrInvalidInput)
		}
		return []string{f.Comparable(v)}, []string{v}, nil
	}
}

// Add indexes doc, replacing any earlier document with the same ID.
func (s *Store) Add(doc proto.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without id: %w", apperrors.ErrInvalidInput)
	}
	type analyzed struct {
		keys, values []string
	}
	fields := make(map[string]analyzed, len(doc.Fields))
	for name, raw := range doc.Fields {
		f := s.fieldFor(name)
		if !f.Indexed {
			continue
		}
		if !f.Multi && len(raw) > 1 {
			return fmt.Errorf("field %q is single valued, got %d values: %w", name, len(raw), apperrors.ErrInvalidInput)
		}
		var a analyzed
		for _, r := range raw {
			keys, values, err := s.analyze(f, r)
			if err != nil {
				return err
			}
			a.keys = append(a.keys, keys...)
			a.values = append(a.values, values...)
		}
		fields[name] = a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.ids[doc.ID]; ok {
		s.removeLocked(old)
	}
	num := uint32(len(s.docs))
	stored := &storedDoc{id: doc.ID, keys: make(map[string][]string, len(fields))}
	for name, a := range fields {
		fi, ok := s.fields[name]
		if !ok {
			fi = newFieldIndex(s.fieldFor(name))
			s.fields[name] = fi
		}
		for i, key := range a.keys {
			fi.add(key, a.values[i], num)
		}
		stored.keys[name] = a.keys
	}
	s.docs = append(s.docs, stored)
	s.ids[doc.ID] = num
	s.live.Add(num)
	return nil
}

// Delete removes the document with id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	num, ok := s.ids[id]
	if !ok {
		return false
	}
	s.removeLocked(num)
	return true
}

func (s *Store) removeLocked(num uint32) {
	doc := s.docs[num]
	for name, keys := range doc.keys {
		fi := s.fields[name]
		for _, key := range keys {
			fi.remove(key, num)
		}
		fi.present.Remove(num)
	}
	delete(s.ids, doc.id)
	s.docs[num] = nil
	s.live.Remove(num)
}

// DocCount returns the number of live documents.
func (s *Store) DocCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.GetCardinality()
}

// FieldNames returns the indexed field names in order.
func (s *Store) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Read runs fn against a consistent view of the store. The view and every
// bitmap it returns are only valid inside fn and must not be modified.
func (s *Store) Read(fn func(v *View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&View{s: s})
}

// View is a read-only window on a Store.
type View struct {
	s *Store
}

// Live returns every live document.
func (v *View) Live() *roaring.Bitmap {
	return v.s.live
}

// Field returns the schema of name.
func (v *View) Field(name string) schema.Field {
	return v.s.fieldFor(name)
}

// Present returns the documents with at least one value in name.
func (v *View) Present(name string) *roaring.Bitmap {
	if fi, ok := v.s.fields[name]; ok {
		return fi.present
	}
	return roaring.New()
}

// Terms returns the dictionary of name in key order.
func (v *View) Terms(name string) []*Term {
	if fi, ok := v.s.fields[name]; ok {
		return fi.sorted
	}
	return nil
}

// Lookup finds the term a facet value refers to.
func (v *View) Lookup(name, value string) (*Term, bool) {
	fi, ok := v.s.fields[name]
	if !ok {
		return nil, false
	}
	var key string
	switch fi.field.Type {
	case schema.TypeText:
		terms := v.s.analyzer.Terms(value)
		if len(terms) != 1 {
			return nil, false
		}
		key = terms[0]
	case schema.TypeString:
		key = value
	default:
		key = fi.field.Comparable(value)
	}
	t, ok := fi.terms[key]
	return t, ok
}

// textFields lists the indexed text fields, used for bare-word clauses.
func (v *View) textFields() []*fieldIndex {
	var out []*fieldIndex
	for _, fi := range v.s.fields {
		if fi.field.Type == schema.TypeText {
			out = append(out, fi)
		}
	}
	return out
}
