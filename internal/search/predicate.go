// Package search turns client filters into predicates and runs the
// paginated count-and-fetch over a listing source.
package search

import (
	"fmt"
	"strings"
)

type Op int

const (
	OpGTE Op = iota
	OpLT
	OpEQ
	OpContains
	OpGT
)

func (o Op) String() string {
	switch o {
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpEQ:
		return "="
	case OpContains:
		return "CONTAINS"
	case OpGT:
		return ">"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Predicate is one AND-combined condition: a column, an operator and the
// bound value. The value is never interpolated into query text.
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

// Fragment renders the condition with a "?" placeholder for the value.
func (p Predicate) Fragment() string {
	return p.Column + " " + p.Op.String() + " ?"
}

// Match evaluates the predicate against a stored value, for drivers that
// filter in process.
func (p Predicate) Match(v any) bool {
	switch p.Op {
	case OpContains:
		s, ok := v.(string)
		tok, ok2 := p.Value.(string)
		return ok && ok2 && strings.Contains(s, tok)
	case OpEQ:
		if s, ok := v.(string); ok {
			want, ok := p.Value.(string)
			return ok && s == want
		}
	}
	a, ok := toInt64(v)
	b, ok2 := toInt64(p.Value)
	if !ok || !ok2 {
		return false
	}
	switch p.Op {
	case OpGTE:
		return a >= b
	case OpLT:
		return a < b
	case OpGT:
		return a > b
	case OpEQ:
		return a == b
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
