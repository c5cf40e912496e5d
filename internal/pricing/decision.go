package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDropThresholdPct is the relative drop that counts as significant.
var DefaultDropThresholdPct = decimal.NewFromInt(20)

var hundred = decimal.NewFromInt(100)

// Reason identifies why a decision asks for an alert.
type Reason uint8

const (
	SignificantDrop Reason = 1 << iota
	NewAllTimeLow
)

var allReasons = []Reason{SignificantDrop, NewAllTimeLow}

// String returns the reason's stable wire name.
func (r Reason) String() string {
	switch r {
	case SignificantDrop:
		return "significant_drop"
	case NewAllTimeLow:
		return "new_all_time_low"
	default:
		return "unknown"
	}
}

// Reasons is the set of reasons produced by a single decision.
type Reasons uint8

// Has reports whether r contains reason.
func (r Reasons) Has(reason Reason) bool {
	return uint8(r)&uint8(reason) != 0
}

// With returns r with reason added.
func (r Reasons) With(reason Reason) Reasons {
	return Reasons(uint8(r) | uint8(reason))
}

// Empty reports whether no reason fired.
func (r Reasons) Empty() bool {
	return r == 0
}

// List returns the members in a stable order.
func (r Reasons) List() []Reason {
	out := make([]Reason, 0, len(allReasons))
	for _, reason := range allReasons {
		if r.Has(reason) {
			out = append(out, reason)
		}
	}
	return out
}

// Strings returns the member names in a stable order.
func (r Reasons) Strings() []string {
	list := r.List()
	out := make([]string, len(list))
	for i, reason := range list {
		out[i] = reason.String()
	}
	return out
}

// String joins the member names with commas, or returns "none".
func (r Reasons) String() string {
	if r.Empty() {
		return "none"
	}
	return strings.Join(r.Strings(), ",")
}

// ParseReasons is the inverse of Reasons.Strings. Unknown names are ignored.
func ParseReasons(names []string) Reasons {
	var set Reasons
	for _, name := range names {
		for _, reason := range allReasons {
			if reason.String() == name {
				set = set.With(reason)
			}
		}
	}
	return set
}

// Input carries everything a decision depends on. Last and Lowest are
// invalid when the item has no recorded history.
type Input struct {
	ItemID string
	New    decimal.Decimal
	Last   decimal.NullDecimal
	Lowest decimal.NullDecimal
}

// Decision is the outcome of evaluating one new price.
type Decision struct {
	ItemID    string
	NewLowest decimal.Decimal
	// DropPct is set whenever a previous price exists and is non-zero.
	DropPct decimal.NullDecimal
	Reasons Reasons
	// LowestBackfilled marks decisions where the history had a last price
	// but no lowest price, and the last price stood in for it.
	LowestBackfilled bool
}

// Engine evaluates alert policies. It keeps no state between calls.
type Engine struct {
	threshold decimal.Decimal
}

// NewEngine builds an engine using thresholdPct as the inclusive
// significant-drop threshold.
func NewEngine(thresholdPct decimal.Decimal) *Engine {
	return &Engine{threshold: thresholdPct}
}

// Threshold returns the configured drop threshold in percent.
func (e *Engine) Threshold() decimal.Decimal {
	return e.threshold
}

// Decide computes the new lowest price and the triggered reasons.
func (e *Engine) Decide(in Input) Decision {
	d := Decision{ItemID: in.ItemID}

	lowest := in.Lowest
	if !lowest.Valid && in.Last.Valid {
		lowest = in.Last
		d.LowestBackfilled = true
	}

	if !lowest.Valid {
		d.NewLowest = in.New
		d.Reasons = d.Reasons.With(NewAllTimeLow)
	} else {
		d.NewLowest = decimal.Min(lowest.Decimal, in.New)
		if in.New.LessThan(lowest.Decimal) {
			d.Reasons = d.Reasons.With(NewAllTimeLow)
		}
	}

	if in.Last.Valid && in.Last.Decimal.IsPositive() {
		last := in.Last.Decimal
		d.DropPct = decimal.NewNullDecimal(DropPct(last, in.New))
		// (last-new)*100 >= threshold*last, compared without dividing.
		diff := last.Sub(in.New)
		if diff.IsPositive() && diff.Mul(hundred).GreaterThanOrEqual(e.threshold.Mul(last)) {
			d.Reasons = d.Reasons.With(SignificantDrop)
		}
	}

	return d
}

// DropPct returns (last-current)/last*100. last must be non-zero.
func DropPct(last, current decimal.Decimal) decimal.Decimal {
	return last.Sub(current).Div(last).Mul(hundred)
}
