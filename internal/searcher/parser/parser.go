// Package parser turns HTTP facet parameters into a facet.Request.
//
// Parameters follow the usual faceting conventions:
//
//	facet.field=category                 field facet
//	facet.field={!key=cat}category       field facet labelled "cat"
//	f.category.facet.limit=5             per-field override of facet.limit
//	facet.query=price:[0 TO 10]          query facet
//	facet.range=price                    range facet (facet.range.start/end/gap)
//	facet.date=published                 date range facet (facet.date.start/end/gap)
//	facet.interval=price                 interval facet (f.price.facet.interval.set)
//	facet.pivot=category,brand           pivot facet
package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// Parser applies configured defaults to request parameters.
type Parser struct {
	defaults config.FacetConfig
	tolerant bool
}

// New creates a parser. tolerant is the default for shards.tolerant.
func New(defaults config.FacetConfig, tolerant bool) *Parser {
	return &Parser{defaults: defaults, tolerant: tolerant}
}

// LocalParams are the {!...} options in front of a facet parameter. Only key
// and ex are recognised; ex is carried along untouched.
type LocalParams struct {
	Key     string
	Exclude string
	Raw     string
}

// SplitLocalParams separates a leading {!k=v ...} block from value.
func SplitLocalParams(value string) (LocalParams, string, error) {
	var lp LocalParams
	if !strings.HasPrefix(value, "{!") {
		return lp, value, nil
	}
	end := strings.IndexByte(value, '}')
	if end < 0 {
		return lp, "", apperrors.Newf(apperrors.ErrInvalidInput, 400, "unterminated local params in %q", value)
	}
	lp.Raw = value[:end+1]
	for _, kv := range strings.Fields(value[2:end]) {
		k, v, _ := strings.Cut(kv, "=")
		v = strings.Trim(v, `'"`)
		switch k {
		case "key":
			lp.Key = v
		case "ex":
			lp.Exclude = v
		}
	}
	return lp, strings.TrimSpace(value[end+1:]), nil
}

// Parse builds the request described by params.
func (p *Parser) Parse(params url.Values) (*facet.Request, error) {
	req := &facet.Request{
		Query:    params.Get("q"),
		Filters:  params["fq"],
		Tolerant: p.tolerant,
	}
	if req.Query == "" {
		req.Query = "*:*"
	}
	v := values(params)
	tolerant, err := v.boolean("shards.tolerant", p.tolerant)
	if err != nil {
		return nil, err
	}
	req.Tolerant = tolerant

	enabled, err := v.boolean("facet", true)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return req, nil
	}

	for _, raw := range dedupe(params["facet.query"]) {
		lp, q, err := SplitLocalParams(raw)
		if err != nil {
			return nil, err
		}
		key := lp.Key
		if key == "" {
			key = q
		}
		req.Facets = append(req.Facets, facet.QuerySpec{Base: base(key, lp), Query: q})
	}
	for _, raw := range dedupe(params["facet.field"]) {
		spec, err := p.fieldSpec(v, raw)
		if err != nil {
			return nil, err
		}
		req.Facets = append(req.Facets, spec)
	}
	for _, kind := range []string{"range", "date"} {
		for _, raw := range dedupe(params["facet."+kind]) {
			spec, err := p.rangeSpec(v, kind, raw)
			if err != nil {
				return nil, err
			}
			req.Facets = append(req.Facets, spec)
		}
	}
	for _, raw := range dedupe(params["facet.interval"]) {
		spec, err := p.intervalSpec(v, params, raw)
		if err != nil {
			return nil, err
		}
		req.Facets = append(req.Facets, spec)
	}
	for _, raw := range dedupe(params["facet.pivot"]) {
		spec, err := p.pivotSpec(v, raw)
		if err != nil {
			return nil, err
		}
		req.Facets = append(req.Facets, spec)
	}

	if p.defaults.MaxFacets > 0 && len(req.Facets) > p.defaults.MaxFacets {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"request asks for %d facets, at most %d allowed", len(req.Facets), p.defaults.MaxFacets)
	}
	return req, nil
}

func base(key string, lp LocalParams) facet.Base {
	return facet.Base{FacetKey: key, LocalParams: lp.Raw}
}

// dedupe drops repeated values, keeping the first occurrence.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (p *Parser) fieldSpec(v values, raw string) (facet.FieldSpec, error) {
	lp, field, err := SplitLocalParams(raw)
	if err != nil {
		return facet.FieldSpec{}, err
	}
	if field == "" {
		return facet.FieldSpec{}, apperrors.Configurationf("facet.field %q names no field", raw)
	}
	key := lp.Key
	if key == "" {
		key = field
	}
	spec, err := p.level(v, field)
	if err != nil {
		return facet.FieldSpec{}, err
	}
	spec.Base = base(key, lp)
	return spec, nil
}

// level reads every field facet parameter for field, honouring per-field
// overrides.
func (p *Parser) level(v values, field string) (facet.FieldSpec, error) {
	spec := facet.FieldSpec{Field: field, Prefix: v.field(field, "facet.prefix")}
	var err error
	if spec.Limit, err = v.integer(field, "facet.limit", p.defaults.DefaultLimit); err != nil {
		return spec, err
	}
	if spec.Limit < 0 {
		spec.Limit = facet.Unbounded
	}
	if spec.Offset, err = v.integer(field, "facet.offset", 0); err != nil {
		return spec, err
	}
	if spec.Offset < 0 {
		return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "facet.offset for %q must not be negative", field)
	}

	zeros, err := v.fieldBoolean(field, "facet.zeros", true)
	if err != nil {
		return spec, err
	}
	defaultMin := 0
	if !zeros {
		defaultMin = 1
	}
	if spec.MinCount, err = v.integer(field, "facet.mincount", defaultMin); err != nil {
		return spec, err
	}
	if spec.MinCount < 0 {
		return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "facet.mincount for %q must not be negative", field)
	}

	spec.Sort = facet.SortIndex
	if spec.Limit > 0 {
		spec.Sort = facet.SortCount
	}
	if s := v.field(field, "facet.sort"); s != "" {
		if spec.Sort, err = facet.ParseSort(s); err != nil {
			return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "field %q: %v", field, err)
		}
	}
	if spec.Missing, err = v.fieldBoolean(field, "facet.missing", false); err != nil {
		return spec, err
	}
	if spec.OverrequestRatio, err = v.float(field, "facet.overrequest.ratio", p.defaults.OverrequestRatio); err != nil {
		return spec, err
	}
	if spec.OverrequestCount, err = v.integer(field, "facet.overrequest.count", p.defaults.OverrequestCount); err != nil {
		return spec, err
	}
	if spec.OverrequestCount < 0 {
		return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "facet.overrequest.count for %q must not be negative", field)
	}
	return spec, nil
}

func (p *Parser) rangeSpec(v values, kind, raw string) (facet.RangeSpec, error) {
	lp, field, err := SplitLocalParams(raw)
	if err != nil {
		return facet.RangeSpec{}, err
	}
	key := lp.Key
	if key == "" {
		key = field
	}
	spec := facet.RangeSpec{
		Base:  base(key, lp),
		Field: field,
		Start: v.field(field, "facet."+kind+".start"),
		End:   v.field(field, "facet."+kind+".end"),
		Gap:   v.field(field, "facet."+kind+".gap"),
		Date:  kind == "date",
	}
	if spec.Start == "" || spec.End == "" || spec.Gap == "" {
		return spec, apperrors.Configurationf("facet.%s %q needs start, end and gap", kind, field)
	}
	if spec.HardEnd, err = v.fieldBoolean(field, "facet."+kind+".hardend", false); err != nil {
		return spec, err
	}
	if spec.MinCount, err = v.integer(field, "facet.mincount", 0); err != nil {
		return spec, err
	}
	if spec.MinCount < 0 {
		return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "facet.mincount for %q must not be negative", field)
	}
	if _, err := spec.Bounds(); err != nil {
		return spec, err
	}
	return spec, nil
}

func (p *Parser) intervalSpec(v values, params url.Values, raw string) (facet.IntervalSpec, error) {
	lp, field, err := SplitLocalParams(raw)
	if err != nil {
		return facet.IntervalSpec{}, err
	}
	key := lp.Key
	if key == "" {
		key = field
	}
	spec := facet.IntervalSpec{Base: base(key, lp), Field: field}
	sets := params["f."+field+".facet.interval.set"]
	if len(sets) == 0 {
		sets = params["facet.interval.set"]
	}
	for _, s := range sets {
		iv, err := ParseInterval(s)
		if err != nil {
			return spec, err
		}
		spec.Intervals = append(spec.Intervals, iv)
	}
	if len(spec.Intervals) == 0 {
		return spec, apperrors.Configurationf("facet.interval %q has no facet.interval.set", field)
	}
	return spec, nil
}

// ParseInterval reads "[lo,hi)" style intervals; '*' or an empty bound is
// open. A {!key=...} prefix labels the interval.
func ParseInterval(raw string) (facet.Interval, error) {
	lp, s, err := SplitLocalParams(strings.TrimSpace(raw))
	if err != nil {
		return facet.Interval{}, err
	}
	bad := apperrors.Configurationf("malformed interval %q", raw)
	if len(s) < 3 {
		return facet.Interval{}, bad
	}
	lb, rb := s[0], s[len(s)-1]
	if (lb != '[' && lb != '(') || (rb != ']' && rb != ')') {
		return facet.Interval{}, bad
	}
	lo, hi, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return facet.Interval{}, bad
	}
	iv := facet.Interval{
		Key:            s,
		Start:          strings.TrimSpace(lo),
		End:            strings.TrimSpace(hi),
		StartInclusive: lb == '[',
		EndInclusive:   rb == ']',
	}
	if iv.Start == "*" {
		iv.Start = ""
	}
	if iv.End == "*" {
		iv.End = ""
	}
	if lp.Key != "" {
		iv.Key = lp.Key
	}
	return iv, nil
}

func (p *Parser) pivotSpec(v values, raw string) (facet.PivotSpec, error) {
	lp, list, err := SplitLocalParams(raw)
	if err != nil {
		return facet.PivotSpec{}, err
	}
	key := lp.Key
	if key == "" {
		key = list
	}
	spec := facet.PivotSpec{Base: base(key, lp)}
	fields := strings.Split(list, ",")
	if spec.MinCount, err = v.integer("", "facet.pivot.mincount", p.defaults.PivotMinCount); err != nil {
		return spec, err
	}
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			return spec, apperrors.Configurationf("facet.pivot %q has an empty field", raw)
		}
		level, err := p.level(v, field)
		if err != nil {
			return spec, err
		}
		level.Base = facet.Base{FacetKey: field}
		if level.MinCount, err = v.integer(field, "facet.pivot.mincount", spec.MinCount); err != nil {
			return spec, err
		}
		if level.MinCount < 0 {
			return spec, apperrors.Newf(apperrors.ErrInvalidInput, 400, "facet.pivot.mincount for %q must not be negative", field)
		}
		spec.Levels = append(spec.Levels, level)
	}
	return spec, nil
}

// values looks parameters up with per-field overrides.
type values url.Values

// field returns f.<field>.<name>, falling back to <name>.
func (v values) field(field, name string) string {
	if field != "" {
		if s := url.Values(v).Get("f." + field + "." + name); s != "" {
			return s
		}
	}
	return url.Values(v).Get(name)
}

func (v values) integer(field, name string, def int) (int, error) {
	s := v.field(field, name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "%s must be an integer, got %q", name, s)
	}
	return n, nil
}

func (v values) float(field, name string, def float64) (float64, error) {
	s := v.field(field, name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "%s must be a non-negative number, got %q", name, s)
	}
	return f, nil
}

func (v values) fieldBoolean(field, name string, def bool) (bool, error) {
	s := v.field(field, name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, apperrors.Newf(apperrors.ErrInvalidInput, 400, "%s must be a boolean, got %q", name, s)
	}
	return b, nil
}

func (v values) boolean(name string, def bool) (bool, error) {
	return v.fieldBoolean("", name, def)
}
