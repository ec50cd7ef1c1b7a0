package query

import "github.com/pakdb/pakdb/pkg/schema"

// ArithOp is the operator for an Operator<Op,L,R> subexpression.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
)

// Expr is a Subexpr<T> for the integer predicate tree: a column reference,
// a constant, or an arithmetic combination of two sub-expressions.
type Expr interface {
	eval(t *schema.Table, pos int) (int64, error)
	// asColumn reports (col, true) when this expression is exactly a bare
	// Column reference, letting the driver pick the leaf-accelerated path.
	asColumn() (schema.ColKey, bool)
}

// Column builds a Subexpr referencing an integer/bool/link column.
func Column(col schema.ColKey) Expr { return columnExpr{col} }

// Value builds a constant Subexpr.
func Value(v int64) Expr { return valueExpr{v} }

// Op builds an Operator<Op,L,R> arithmetic Subexpr.
func Op(op ArithOp, l, r Expr) Expr { return operatorExpr{op, l, r} }

type columnExpr struct{ col schema.ColKey }

func (e columnExpr) eval(t *schema.Table, pos int) (int64, error) {
	c, err := t.Column(e.col)
	if err != nil {
		return 0, err
	}

	tree := c.Tree()
	if tree == nil {
		return 0, ErrNotIntColumn
	}

	return tree.Get(pos)
}

func (e columnExpr) asColumn() (schema.ColKey, bool) { return e.col, true }

type valueExpr struct{ v int64 }

func (e valueExpr) eval(_ *schema.Table, _ int) (int64, error) { return e.v, nil }
func (e valueExpr) asColumn() (schema.ColKey, bool)             { return 0, false }

type operatorExpr struct {
	op   ArithOp
	l, r Expr
}

func (e operatorExpr) eval(t *schema.Table, pos int) (int64, error) {
	l, err := e.l.eval(t, pos)
	if err != nil {
		return 0, err
	}

	r, err := e.r.eval(t, pos)
	if err != nil {
		return 0, err
	}

	switch e.op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	default:
		return 0, nil
	}
}

func (e operatorExpr) asColumn() (schema.ColKey, bool) { return 0, false }

// Node is a predicate tree node: a Compare leaf or a BooleanNode combinator.
type Node interface {
	eval(t *schema.Table, pos int) (bool, error)
}

// CompareNode is a Compare<Cond,T> node between two Subexprs.
type CompareNode struct {
	Cond  Cond
	Left  Expr
	Right Expr
}

// Compare builds a Compare<Cond,T> predicate node.
func Compare(cond Cond, left, right Expr) *CompareNode {
	return &CompareNode{Cond: cond, Left: left, Right: right}
}

func (n *CompareNode) eval(t *schema.Table, pos int) (bool, error) {
	l, err := n.Left.eval(t, pos)
	if err != nil {
		return false, err
	}

	r, err := n.Right.eval(t, pos)
	if err != nil {
		return false, err
	}

	return n.Cond.matchScalar(l, r), nil
}

// asSimpleColumnCompare reports whether this is exactly Column <cond> Value
// (or Value <cond> Column, normalized), the case the optimizer hook and the
// leaf-accelerated scan both special-case.
func (n *CompareNode) asSimpleColumnCompare() (col schema.ColKey, cond Cond, v int64, ok bool) {
	if c, isCol := n.Left.asColumn(); isCol {
		if ve, isVal := n.Right.(valueExpr); isVal {
			return c, n.Cond, ve.v, true
		}
	}

	if c, isCol := n.Right.asColumn(); isCol {
		if ve, isVal := n.Left.(valueExpr); isVal {
			return c, flip(n.Cond), ve.v, true
		}
	}

	return 0, 0, 0, false
}

// flip swaps operand order: `v Cond col` becomes `col flip(Cond) v`.
func flip(c Cond) Cond {
	switch c {
	case Less:
		return Greater
	case Greater:
		return Less
	case LessEq:
		return GreaterEq
	case GreaterEq:
		return LessEq
	default:
		return c
	}
}

// And builds a BooleanNode.And(children...).
func And(children ...Node) Node { return andNode{children} }

// Or builds a BooleanNode.Or(children...).
func Or(children ...Node) Node { return orNode{children} }

// Group builds a BooleanNode.Group(child), a transparent wrapper used only
// to mark parenthesization in callers that build trees programmatically.
func Group(child Node) Node { return groupNode{child} }

type andNode struct{ children []Node }

func (n andNode) eval(t *schema.Table, pos int) (bool, error) {
	for _, c := range n.children {
		ok, err := c.eval(t, pos)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

type orNode struct{ children []Node }

func (n orNode) eval(t *schema.Table, pos int) (bool, error) {
	for _, c := range n.children {
		ok, err := c.eval(t, pos)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

type groupNode struct{ child Node }

func (n groupNode) eval(t *schema.Table, pos int) (bool, error) { return n.child.eval(t, pos) }
