package alerting

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/tphakala/vigil/internal/errors"
)

// Operator is the comparison a condition applies.
type Operator string

const (
	OpGreaterThan      Operator = ">"
	OpLessThan         Operator = "<"
	OpGreaterOrEqual   Operator = ">="
	OpLessOrEqual      Operator = "<="
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpCrossesAbove     Operator = "crosses_above"
	OpCrossesBelow     Operator = "crosses_below"
	OpPercentageChange Operator = "percentage_change"
)

// operatorAliases maps the word spellings accepted in configuration files.
var operatorAliases = map[string]Operator{
	"greater_than":     OpGreaterThan,
	"gt":               OpGreaterThan,
	"less_than":        OpLessThan,
	"lt":               OpLessThan,
	"greater_or_equal": OpGreaterOrEqual,
	"gte":              OpGreaterOrEqual,
	"less_or_equal":    OpLessOrEqual,
	"lte":              OpLessOrEqual,
	"equal":            OpEqual,
	"equals":           OpEqual,
	"eq":               OpEqual,
	"=":                OpEqual,
	"not_equal":        OpNotEqual,
	"ne":               OpNotEqual,
}

// Operators lists every supported operator in canonical form.
func Operators() []Operator {
	return []Operator{
		OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
		OpEqual, OpNotEqual, OpCrossesAbove, OpCrossesBelow, OpPercentageChange,
	}
}

// ParseOperator accepts canonical symbols and their word aliases.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if op := Operator(key); op.Valid() {
		return op, nil
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownOperator, s)
}

func (o Operator) Valid() bool {
	_, ok := operatorTable[o]
	return ok
}

// Numeric reports whether o requires numeric operands.
func (o Operator) Numeric() bool {
	return o != OpEqual && o != OpNotEqual
}

// RequiresHistory reports whether o compares against a prior snapshot.
func (o Operator) RequiresHistory() bool {
	return o == OpCrossesAbove || o == OpCrossesBelow || o == OpPercentageChange
}

// Evaluation failures. They never escape Condition.Evaluate; Check exposes
// them so callers can log why a condition did not hold.
var (
	ErrFieldNotFound   = errors.NewStd("field not found")
	ErrOperandNotFound = errors.NewStd("comparison operand not found")
	ErrNotNumeric      = errors.NewStd("value is not numeric")
	ErrNoHistory       = errors.NewStd("no historical snapshot")
	ErrZeroBaseline    = errors.NewStd("previous value is zero")
	ErrNoConditions    = errors.NewStd("rule has no conditions")
	ErrUnknownOperator = errors.NewStd("unknown operator")
)

// Condition is a single predicate over a snapshot.
type Condition struct {
	Field        string   `json:"field"`
	Operator     Operator `json:"operator"`
	Value        any      `json:"value"`
	CompareField string   `json:"comparison_field,omitempty"`
	// Timeframe is informational only.
	Timeframe string `json:"timeframe,omitempty"`
}

// evalContext carries everything an operator needs for one evaluation.
type evalContext struct {
	cond     *Condition
	current  any
	operand  any
	snapshot Snapshot
	history  []Snapshot
}

type operatorFunc func(ec *evalContext) (bool, error)

// operatorTable is the single dispatch point for every operator.
var operatorTable map[Operator]operatorFunc

func init() {
	operatorTable = map[Operator]operatorFunc{
		OpGreaterThan:      numericCompare(func(a, b float64) bool { return a > b }),
		OpLessThan:         numericCompare(func(a, b float64) bool { return a < b }),
		OpGreaterOrEqual:   numericCompare(func(a, b float64) bool { return a >= b }),
		OpLessOrEqual:      numericCompare(func(a, b float64) bool { return a <= b }),
		OpEqual:            func(ec *evalContext) (bool, error) { return valuesEqual(ec.current, ec.operand), nil },
		OpNotEqual:         func(ec *evalContext) (bool, error) { return !valuesEqual(ec.current, ec.operand), nil },
		OpCrossesAbove:     crossing(true),
		OpCrossesBelow:     crossing(false),
		OpPercentageChange: percentageChange,
	}
}

// Evaluate reports whether the condition holds. It never panics and never
// returns an error; any evaluation problem resolves to false.
func (c *Condition) Evaluate(snapshot Snapshot, history []Snapshot) bool {
	ok, _ := c.Check(snapshot, history)
	return ok
}

// Check evaluates the condition and explains a false result when it was
// caused by missing or unusable data rather than by the comparison itself.
func (c *Condition) Check(snapshot Snapshot, history []Snapshot) (bool, error) {
	fn, ok := operatorTable[c.Operator]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}

	current, found := LookupField(snapshot, c.Field)
	if !found {
		return false, fmt.Errorf("%w: %s", ErrFieldNotFound, c.Field)
	}

	operand, found := c.resolveOperand(snapshot)
	if !found {
		return false, fmt.Errorf("%w: %s", ErrOperandNotFound, c.CompareField)
	}

	return fn(&evalContext{
		cond:     c,
		current:  current,
		operand:  operand,
		snapshot: snapshot,
		history:  history,
	})
}

func (c *Condition) resolveOperand(snapshot Snapshot) (any, bool) {
	if c.CompareField != "" {
		return LookupField(snapshot, c.CompareField)
	}
	if c.Value == nil {
		return nil, false
	}
	return c.Value, true
}

// String renders the condition for messages and logs.
func (c *Condition) String() string {
	rhs := fmt.Sprint(c.Value)
	if c.CompareField != "" {
		rhs = c.CompareField
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, rhs)
}

func numericCompare(cmp func(a, b float64) bool) operatorFunc {
	return func(ec *evalContext) (bool, error) {
		a, err := toFloat64(ec.current)
		if err != nil {
			return false, err
		}
		b, err := toFloat64(ec.operand)
		if err != nil {
			return false, err
		}
		return cmp(a, b), nil
	}
}

// crossing compares the most recent history entry against the current value.
// When the target is another field, the previous target is read from the
// same history entry so two moving series can cross.
func crossing(above bool) operatorFunc {
	return func(ec *evalContext) (bool, error) {
		prevSnap, err := lastSnapshot(ec.history)
		if err != nil {
			return false, err
		}
		prevRaw, found := LookupField(prevSnap, ec.cond.Field)
		if !found {
			return false, fmt.Errorf("%w: %s in history", ErrFieldNotFound, ec.cond.Field)
		}

		prevTargetRaw := ec.operand
		if ec.cond.CompareField != "" {
			if prevTargetRaw, found = LookupField(prevSnap, ec.cond.CompareField); !found {
				return false, fmt.Errorf("%w: %s in history", ErrOperandNotFound, ec.cond.CompareField)
			}
		}

		cur, err := toFloat64(ec.current)
		if err != nil {
			return false, err
		}
		prev, err := toFloat64(prevRaw)
		if err != nil {
			return false, err
		}
		target, err := toFloat64(ec.operand)
		if err != nil {
			return false, err
		}
		prevTarget, err := toFloat64(prevTargetRaw)
		if err != nil {
			return false, err
		}

		if above {
			return prev <= prevTarget && cur > target, nil
		}
		return prev >= prevTarget && cur < target, nil
	}
}

func percentageChange(ec *evalContext) (bool, error) {
	prevSnap, err := lastSnapshot(ec.history)
	if err != nil {
		return false, err
	}
	prevRaw, found := LookupField(prevSnap, ec.cond.Field)
	if !found {
		return false, fmt.Errorf("%w: %s in history", ErrFieldNotFound, ec.cond.Field)
	}
	prev, err := toFloat64(prevRaw)
	if err != nil {
		return false, err
	}
	if prev == 0 {
		return false, ErrZeroBaseline
	}
	cur, err := toFloat64(ec.current)
	if err != nil {
		return false, err
	}
	threshold, err := toFloat64(ec.operand)
	if err != nil {
		return false, err
	}
	change := math.Abs(cur-prev) / math.Abs(prev) * 100
	return change >= threshold, nil
}

func lastSnapshot(history []Snapshot) (Snapshot, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	return history[len(history)-1], nil
}

// valuesEqual compares numerically when both sides are numeric and falls
// back to string comparison otherwise, so 90 equals "90" and 90.0.
func valuesEqual(a, b any) bool {
	fa, errA := toFloat64(a)
	fb, errB := toFloat64(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// LookupField walks a dot-separated path through nested mappings.
func LookupField(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	var current any = data
	for part := range strings.SplitSeq(path, ".") {
		next, ok := child(current, part)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func child(node any, key string) (any, bool) {
	switch m := node.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case map[string]float64:
		v, ok := m[key]
		return v, ok
	case map[string]string:
		v, ok := m[key]
		return v, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(node)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func toFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %T", ErrNotNumeric, val)
	}
}

// isNumeric reports whether v can be coerced to float64.
func isNumeric(v any) bool {
	_, err := toFloat64(v)
	return err == nil
}
