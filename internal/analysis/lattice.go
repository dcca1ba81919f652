package analysis

import (
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/tools/container/intsets"
)

// Label is a taint label.
type Label int

const (
	UntrustedInput Label = iota
	ExternalCallResult
	CallerControlled
	numLabels
)

var labelNames = [...]string{
	UntrustedInput:     "untrusted-input",
	ExternalCallResult: "external-call-result",
	CallerControlled:   "caller-controlled",
}

func (l Label) String() string { return labelNames[l] }

// Labels is a set of taint labels.
type Labels uint8

func LabelsOf(ls ...Label) Labels {
	var out Labels
	for _, l := range ls {
		out |= 1 << l
	}
	return out
}

func (s Labels) Has(l Label) bool { return s&(1<<l) != 0 }

// Tainted reports whether the value may be chosen by an attacker or returned
// by code outside the contract.
func (s Labels) Tainted() bool {
	return s.Has(UntrustedInput) || s.Has(ExternalCallResult)
}

func (s Labels) String() string {
	var parts []string
	for l := Label(0); l < numLabels; l++ {
		if s.Has(l) {
			parts = append(parts, l.String())
		}
	}
	return strings.Join(parts, ",")
}

type RangeKind int

const (
	RangeUnknown RangeKind = iota
	RangeConst
	RangeBounded
	RangeUnbounded
)

// Range approximates the values a variable may hold. Bounded ranges may carry
// an inclusive upper bound.
type Range struct {
	Kind     RangeKind
	Value    uint256.Int
	HasBound bool
}

func Const(v *uint256.Int) Range { return Range{Kind: RangeConst, Value: *v} }

func ConstUint(v uint64) Range { return Const(uint256.NewInt(v)) }

func Bounded() Range { return Range{Kind: RangeBounded} }

func BoundedBy(v *uint256.Int) Range {
	return Range{Kind: RangeBounded, Value: *v, HasBound: true}
}

func Unbounded() Range { return Range{Kind: RangeUnbounded} }

// Upper returns the inclusive upper bound when one is known.
func (r Range) Upper() (*uint256.Int, bool) {
	switch {
	case r.Kind == RangeConst, r.Kind == RangeBounded && r.HasBound:
		v := r.Value
		return &v, true
	}
	return nil, false
}

func (r Range) Equal(o Range) bool {
	if r.Kind != o.Kind || r.HasBound != o.HasBound {
		return false
	}
	if r.Kind == RangeConst || r.HasBound {
		return r.Value.Eq(&o.Value)
	}
	return true
}

// Join returns the least range covering both. Any change is a strict climb
// unknown < const < bounded(b) < bounded < unbounded.
func (r Range) Join(o Range) Range {
	switch {
	case r.Kind == RangeUnknown:
		return o
	case o.Kind == RangeUnknown:
		return r
	case r.Kind == RangeUnbounded || o.Kind == RangeUnbounded:
		return Unbounded()
	case r.Equal(o):
		return r
	}
	ru, rok := r.Upper()
	ou, ook := o.Upper()
	if !rok || !ook {
		return Bounded()
	}
	switch {
	case r.Kind == RangeConst && o.Kind == RangeConst:
		if ru.Gt(ou) {
			return BoundedBy(ru)
		}
		return BoundedBy(ou)
	case r.Kind == RangeConst:
		if ru.Gt(ou) {
			return Bounded()
		}
		return o
	case o.Kind == RangeConst:
		if ou.Gt(ru) {
			return Bounded()
		}
		return r
	}
	return Bounded()
}

func (r Range) String() string {
	switch r.Kind {
	case RangeConst:
		return "const(" + r.Value.Dec() + ")"
	case RangeBounded:
		if r.HasBound {
			return "bounded(" + r.Value.Dec() + ")"
		}
		return "bounded"
	case RangeUnbounded:
		return "unbounded"
	}
	return "unknown"
}

// Value is the abstract value of an expression.
type Value struct {
	Labels Labels
	Range  Range
}

func (v Value) join(o Value) Value {
	return Value{Labels: v.Labels | o.Labels, Range: v.Range.Join(o.Range)}
}

// State maps every tracked slot to its labels and range at one program point.
// Labels are stored as bits slot*numLabels+label.
type State struct {
	reached bool
	taint   intsets.Sparse
	ranges  []Range
	slots   *slotIndex
}

func newState(slots *slotIndex) *State {
	return &State{ranges: make([]Range, slots.len()), slots: slots}
}

func (s *State) clone() *State {
	c := &State{reached: s.reached, ranges: append([]Range(nil), s.ranges...), slots: s.slots}
	c.taint.Copy(&s.taint)
	return c
}

func (s *State) labels(slot int) Labels {
	var out Labels
	for l := Label(0); l < numLabels; l++ {
		if s.taint.Has(slot*int(numLabels) + int(l)) {
			out |= 1 << l
		}
	}
	return out
}

func (s *State) set(slot int, v Value) {
	for l := Label(0); l < numLabels; l++ {
		bit := slot*int(numLabels) + int(l)
		if v.Labels.Has(l) {
			s.taint.Insert(bit)
		} else {
			s.taint.Remove(bit)
		}
	}
	s.ranges[slot] = v.Range
}

func (s *State) weaken(slot int, v Value) {
	cur := s.get(slot)
	s.set(slot, cur.join(v))
}

func (s *State) get(slot int) Value {
	return Value{Labels: s.labels(slot), Range: s.ranges[slot]}
}

// joinFrom widens s to cover o and reports whether s changed.
func (s *State) joinFrom(o *State) bool {
	if !o.reached {
		return false
	}
	changed := !s.reached
	s.reached = true
	if s.taint.UnionWith(&o.taint) {
		changed = true
	}
	for i, r := range o.ranges {
		j := s.ranges[i].Join(r)
		if !j.Equal(s.ranges[i]) {
			s.ranges[i] = j
			changed = true
		}
	}
	return changed
}

// Reached reports whether any path from entry reaches the point.
func (s *State) Reached() bool { return s.reached }
