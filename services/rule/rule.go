// Package rule implements the typed boolean expression trees trading
// strategies are written in. A rule is parsed once when the strategy is
// built, statically validated against the available indicator columns, and
// then evaluated bar by bar with a tree walk. Nothing in this path executes
// dynamic code.
package rule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Row is one bar's view of named numeric values. The second return is false
// when the value is undefined for that bar (an indicator still warming up).
type Row interface {
	Value(column string) (float64, bool)
}

// ErrUndefined is returned when an expression reads a column that has no
// defined value on the row being evaluated.
var ErrUndefined = errors.New("value undefined")

// Expr is a boolean expression node.
type Expr interface {
	// Eval evaluates the expression against one row.
	Eval(r Row) (bool, error)
	String() string
}

// NumExpr is a numeric expression node.
type NumExpr interface {
	// EvalNum evaluates the operand against one row.
	EvalNum(r Row) (float64, error)
	String() string
}

// CmpOp is a comparison operator.
type CmpOp string

// Comparison operators.
const (
	OpGT CmpOp = ">"
	OpGE CmpOp = ">="
	OpLT CmpOp = "<"
	OpLE CmpOp = "<="
	OpEQ CmpOp = "=="
	OpNE CmpOp = "!="
)

// ArithOp is an arithmetic operator.
type ArithOp string

// Arithmetic operators.
const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// Const is a boolean literal.
type Const struct {
	Value bool
}

// Eval returns the literal.
func (c *Const) Eval(Row) (bool, error) { return c.Value, nil }

func (c *Const) String() string { return strconv.FormatBool(c.Value) }

// Not negates its operand.
type Not struct {
	X Expr
}

// Eval evaluates the operand and inverts it.
func (n *Not) Eval(r Row) (bool, error) {
	v, err := n.X.Eval(r)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n *Not) String() string { return fmt.Sprintf("not %s", n.X) }

// And is true when both operands are true. The right operand is not
// evaluated when the left is already false.
type And struct {
	Left, Right Expr
}

// Eval short-circuits on a false left operand.
func (a *And) Eval(r Row) (bool, error) {
	lv, err := a.Left.Eval(r)
	if err != nil {
		return false, err
	}
	if !lv {
		return false, nil
	}
	return a.Right.Eval(r)
}

func (a *And) String() string { return fmt.Sprintf("(%s and %s)", a.Left, a.Right) }

// Or is true when either operand is true. The right operand is not evaluated
// when the left is already true.
type Or struct {
	Left, Right Expr
}

// Eval short-circuits on a true left operand.
func (o *Or) Eval(r Row) (bool, error) {
	lv, err := o.Left.Eval(r)
	if err != nil {
		return false, err
	}
	if lv {
		return true, nil
	}
	return o.Right.Eval(r)
}

func (o *Or) String() string { return fmt.Sprintf("(%s or %s)", o.Left, o.Right) }

// Compare relates two numeric operands. Equality is exact float64 equality.
type Compare struct {
	Op    CmpOp
	Left  NumExpr
	Right NumExpr
}

// Eval evaluates both operands and applies the operator.
func (c *Compare) Eval(r Row) (bool, error) {
	lv, err := c.Left.EvalNum(r)
	if err != nil {
		return false, err
	}
	rv, err := c.Right.EvalNum(r)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpGT:
		return lv > rv, nil
	case OpGE:
		return lv >= rv, nil
	case OpLT:
		return lv < rv, nil
	case OpLE:
		return lv <= rv, nil
	case OpEQ:
		return lv == rv, nil
	case OpNE:
		return lv != rv, nil
	default:
		return false, fmt.Errorf("rule: unknown comparison operator %q", c.Op)
	}
}

func (c *Compare) String() string { return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right) }

// Ref reads a named column from the row.
type Ref struct {
	Column string
}

// EvalNum fails with ErrUndefined when the column has no value on this row.
func (x *Ref) EvalNum(r Row) (float64, error) {
	v, ok := r.Value(x.Column)
	if !ok || math.IsNaN(v) {
		return 0, fmt.Errorf("column %q: %w", x.Column, ErrUndefined)
	}
	return v, nil
}

func (x *Ref) String() string { return x.Column }

// Lit is a numeric literal.
type Lit struct {
	Value float64
}

// EvalNum returns the literal.
func (l *Lit) EvalNum(Row) (float64, error) { return l.Value, nil }

func (l *Lit) String() string { return strconv.FormatFloat(l.Value, 'g', -1, 64) }

// Arith combines two numeric operands.
type Arith struct {
	Op    ArithOp
	Left  NumExpr
	Right NumExpr
}

// EvalNum evaluates both operands and applies the operator. Division by zero
// is an error, never an Inf or NaN result.
func (a *Arith) EvalNum(r Row) (float64, error) {
	lv, err := a.Left.EvalNum(r)
	if err != nil {
		return 0, err
	}
	rv, err := a.Right.EvalNum(r)
	if err != nil {
		return 0, err
	}
	switch a.Op {
	case OpAdd:
		return lv + rv, nil
	case OpSub:
		return lv - rv, nil
	case OpMul:
		return lv * rv, nil
	case OpDiv:
		if rv == 0 {
			return 0, fmt.Errorf("rule: division by zero in %q", a.String())
		}
		return lv / rv, nil
	default:
		return 0, fmt.Errorf("rule: unknown arithmetic operator %q", a.Op)
	}
}

func (a *Arith) String() string { return fmt.Sprintf("(%s %s %s)", a.Left, a.Op, a.Right) }

// Columns returns the sorted set of column names the expression references.
func Columns(e Expr) []string {
	set := make(map[string]struct{})
	collectExpr(e, set)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every column the expression references is in
// available. All missing columns are reported at once.
func Validate(e Expr, available []string) error {
	have := make(map[string]struct{}, len(available))
	for _, c := range available {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range Columns(e) {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("rule references unknown columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func collectExpr(e Expr, set map[string]struct{}) {
	switch n := e.(type) {
	case *Const:
	case *Not:
		collectExpr(n.X, set)
	case *And:
		collectExpr(n.Left, set)
		collectExpr(n.Right, set)
	case *Or:
		collectExpr(n.Left, set)
		collectExpr(n.Right, set)
	case *Compare:
		collectNum(n.Left, set)
		collectNum(n.Right, set)
	}
}

func collectNum(e NumExpr, set map[string]struct{}) {
	switch n := e.(type) {
	case *Ref:
		set[n.Column] = struct{}{}
	case *Arith:
		collectNum(n.Left, set)
		collectNum(n.Right, set)
	case *Lit:
	}
}
