package filter

import (
	"encoding/json"
	"fmt"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// node is the wire shape of one filter tree node. Exactly one branch may be
// set per node.
type node struct {
	Eq       *leafNode         `json:"eq,omitempty"`
	In       *inNode           `json:"in,omitempty"`
	Range    *rangeNode        `json:"range,omitempty"`
	Contains *leafNode         `json:"contains,omitempty"`
	And      []json.RawMessage `json:"and,omitempty"`
	Or       []json.RawMessage `json:"or,omitempty"`
	Not      json.RawMessage   `json:"not,omitempty"`
}

type leafNode struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type inNode struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type rangeNode struct {
	Key string   `json:"key"`
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// Parse decodes a filter tree from its JSON wire form. An empty or absent
// payload yields a nil filter (match-all).
func Parse(raw json.RawMessage) (Filter, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}

	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode filter: %w: %w", domain.ErrInvalidFilter, err)
	}
	return fromNode(&n)
}

func fromNode(n *node) (Filter, error) {
	set := 0
	if n.Eq != nil {
		set++
	}
	if n.In != nil {
		set++
	}
	if n.Range != nil {
		set++
	}
	if n.Contains != nil {
		set++
	}
	if len(n.And) > 0 {
		set++
	}
	if len(n.Or) > 0 {
		set++
	}
	if len(n.Not) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("filter node must set exactly one of eq/in/range/contains/and/or/not: %w",
			domain.ErrInvalidFilter)
	}

	switch {
	case n.Eq != nil:
		return NewEq(n.Eq.Key, n.Eq.Value)
	case n.In != nil:
		return NewIn(n.In.Key, n.In.Values)
	case n.Range != nil:
		return NewRange(n.Range.Key, n.Range.GT, n.Range.GTE, n.Range.LT, n.Range.LTE)
	case n.Contains != nil:
		return NewContains(n.Contains.Key, n.Contains.Value)
	case len(n.And) > 0:
		children, err := parseChildren(n.And)
		if err != nil {
			return nil, err
		}
		return NewAnd(children...)
	case len(n.Or) > 0:
		children, err := parseChildren(n.Or)
		if err != nil {
			return nil, err
		}
		return NewOr(children...)
	default:
		child, err := Parse(n.Not)
		if err != nil {
			return nil, err
		}
		return NewNot(child)
	}
}

func parseChildren(raws []json.RawMessage) ([]Filter, error) {
	children := make([]Filter, 0, len(raws))
	for _, raw := range raws {
		c, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("combinator child must not be empty: %w", domain.ErrInvalidFilter)
		}
		children = append(children, c)
	}
	return children, nil
}
