// Package filter defines the metadata filter language applied to vector
// records independently of similarity scoring. The tree is a closed sum type
// (Eq, In, Range, Contains, And, Or, Not) so every backend translator can
// pattern-match exhaustively.
package filter

import (
	"fmt"
	"strings"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// MaxChildren is the maximum number of children per combinator.
const MaxChildren = 32

// Filter is one node of a metadata filter tree. A nil Filter matches every
// record.
type Filter interface {
	// Matches evaluates the filter against a record's metadata. Each leaf
	// predicate evaluates independently; combinators compose recursively with
	// standard boolean semantics.
	Matches(meta *domain.RecordMetadata) bool

	sealed()
}

// Matches evaluates f against meta, treating a nil filter as match-all.
func Matches(f Filter, meta *domain.RecordMetadata) bool {
	if f == nil {
		return true
	}
	return f.Matches(meta)
}

// Eq is an exact-match predicate on a tag field.
type Eq struct {
	key   string
	value string
}

// NewEq validates and creates an exact-match predicate.
func NewEq(key, value string) (Eq, error) {
	if key == "" {
		return Eq{}, fmt.Errorf("filter key is required: %w", domain.ErrInvalidFilter)
	}
	if value == "" {
		return Eq{}, fmt.Errorf("eq value is required for key %q: %w", key, domain.ErrInvalidFilter)
	}
	return Eq{key: key, value: value}, nil
}

// Key returns the field name.
func (f Eq) Key() string { return f.key }

// Value returns the expected value.
func (f Eq) Value() string { return f.value }

func (f Eq) Matches(meta *domain.RecordMetadata) bool {
	v, ok := meta.Tag(f.key)
	return ok && v == f.value
}

func (Eq) sealed() {}

// In is a set-membership predicate on a tag field.
type In struct {
	key    string
	values []string
}

// NewIn validates and creates a set-membership predicate.
func NewIn(key string, values []string) (In, error) {
	if key == "" {
		return In{}, fmt.Errorf("filter key is required: %w", domain.ErrInvalidFilter)
	}
	if len(values) == 0 {
		return In{}, fmt.Errorf("in filter for key %q needs at least one value: %w", key, domain.ErrInvalidFilter)
	}
	return In{key: key, values: values}, nil
}

// Key returns the field name.
func (f In) Key() string { return f.key }

// Values returns the accepted values.
func (f In) Values() []string { return f.values }

func (f In) Matches(meta *domain.RecordMetadata) bool {
	v, ok := meta.Tag(f.key)
	if !ok {
		return false
	}
	for _, want := range f.values {
		if v == want {
			return true
		}
	}
	return false
}

func (In) sealed() {}

// Range is a numeric range predicate with gt/gte/lt/lte boundaries.
type Range struct {
	key string
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRange validates and creates a numeric range predicate.
// At least one boundary is required; gt/gte and lt/lte are mutually exclusive.
func NewRange(key string, gt, gte, lt, lte *float64) (Range, error) {
	if key == "" {
		return Range{}, fmt.Errorf("filter key is required: %w", domain.ErrInvalidFilter)
	}
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("range for key %q needs at least one boundary: %w", key, domain.ErrInvalidFilter)
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte: %w", domain.ErrInvalidFilter)
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte: %w", domain.ErrInvalidFilter)
	}
	return Range{key: key, gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// Key returns the field name.
func (f Range) Key() string { return f.key }

// GT returns the exclusive lower bound, or nil.
func (f Range) GT() *float64 { return f.gt }

// GTE returns the inclusive lower bound, or nil.
func (f Range) GTE() *float64 { return f.gte }

// LT returns the exclusive upper bound, or nil.
func (f Range) LT() *float64 { return f.lt }

// LTE returns the inclusive upper bound, or nil.
func (f Range) LTE() *float64 { return f.lte }

func (f Range) Matches(meta *domain.RecordMetadata) bool {
	v, ok := meta.Numeric(f.key)
	if !ok {
		return false
	}
	if f.gt != nil && v <= *f.gt {
		return false
	}
	if f.gte != nil && v < *f.gte {
		return false
	}
	if f.lt != nil && v >= *f.lt {
		return false
	}
	if f.lte != nil && v > *f.lte {
		return false
	}
	return true
}

func (Range) sealed() {}

// Contains is a case-insensitive substring predicate on a tag field.
type Contains struct {
	key    string
	substr string
}

// NewContains validates and creates a substring predicate.
func NewContains(key, substr string) (Contains, error) {
	if key == "" {
		return Contains{}, fmt.Errorf("filter key is required: %w", domain.ErrInvalidFilter)
	}
	if substr == "" {
		return Contains{}, fmt.Errorf("contains value is required for key %q: %w", key, domain.ErrInvalidFilter)
	}
	return Contains{key: key, substr: substr}, nil
}

// Key returns the field name.
func (f Contains) Key() string { return f.key }

// Substr returns the substring to look for.
func (f Contains) Substr() string { return f.substr }

func (f Contains) Matches(meta *domain.RecordMetadata) bool {
	v, ok := meta.Tag(f.key)
	return ok && strings.Contains(strings.ToLower(v), strings.ToLower(f.substr))
}

func (Contains) sealed() {}

// And matches when every child matches.
type And struct {
	children []Filter
}

// NewAnd validates and creates a conjunction. Callers must supply at least one
// child; an empty combinator is rejected rather than treated as match-all.
func NewAnd(children ...Filter) (And, error) {
	if err := validateChildren("and", children); err != nil {
		return And{}, err
	}
	return And{children: children}, nil
}

// Children returns the conjuncts.
func (f And) Children() []Filter { return f.children }

func (f And) Matches(meta *domain.RecordMetadata) bool {
	for _, c := range f.children {
		if !c.Matches(meta) {
			return false
		}
	}
	return true
}

func (And) sealed() {}

// Or matches when any child matches.
type Or struct {
	children []Filter
}

// NewOr validates and creates a disjunction.
func NewOr(children ...Filter) (Or, error) {
	if err := validateChildren("or", children); err != nil {
		return Or{}, err
	}
	return Or{children: children}, nil
}

// Children returns the disjuncts.
func (f Or) Children() []Filter { return f.children }

func (f Or) Matches(meta *domain.RecordMetadata) bool {
	for _, c := range f.children {
		if c.Matches(meta) {
			return true
		}
	}
	return false
}

func (Or) sealed() {}

// Not inverts its child.
type Not struct {
	child Filter
}

// NewNot validates and creates a negation.
func NewNot(child Filter) (Not, error) {
	if child == nil {
		return Not{}, fmt.Errorf("not filter needs a child: %w", domain.ErrInvalidFilter)
	}
	return Not{child: child}, nil
}

// Child returns the negated filter.
func (f Not) Child() Filter { return f.child }

func (f Not) Matches(meta *domain.RecordMetadata) bool {
	return !f.child.Matches(meta)
}

func (Not) sealed() {}

func validateChildren(op string, children []Filter) error {
	if len(children) == 0 {
		return fmt.Errorf("%s combinator needs at least one child: %w", op, domain.ErrInvalidFilter)
	}
	if len(children) > MaxChildren {
		return fmt.Errorf("%s combinator exceeds %d children: %w", op, MaxChildren, domain.ErrInvalidFilter)
	}
	for i, c := range children {
		if c == nil {
			return fmt.Errorf("%s child %d is nil: %w", op, i, domain.ErrInvalidFilter)
		}
	}
	return nil
}
