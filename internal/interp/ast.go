package interp

import "fmt"

// ParseError reports a syntactically invalid snippet.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// RuntimeError reports a snippet that parsed but failed during
// evaluation (bad operand types, budget exhaustion, missing callables).
type RuntimeError struct {
	Pos int
	Msg string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at offset %d: %s", e.Pos, e.Msg)
}

// node is one AST vertex. The grammar is deliberately closed: there is
// no loop construct, no assignment except let-bound locals, no function
// definition, and calls name capabilities directly, so termination and
// capability confinement hold by construction.
type node interface {
	pos() int
}

type numberLit struct {
	value float64
	at    int
}

type stringLit struct {
	value string
	at    int
}

type boolLit struct {
	value bool
	at    int
}

type nilLit struct {
	at int
}

type ident struct {
	name string
	at   int
}

type member struct {
	x    node
	name string
	at   int
}

type index struct {
	x  node
	i  node
	at int
}

type call struct {
	fn   string
	args []node
	at   int
}

type unary struct {
	op string
	x  node
	at int
}

type binary struct {
	op   string
	l, r node
	at   int
}

type objectLit struct {
	keys []string
	vals []node
	at   int
}

type arrayLit struct {
	elems []node
	at    int
}

type letStmt struct {
	name string
	x    node
	at   int
}

func (n *numberLit) pos() int { return n.at }
func (n *stringLit) pos() int { return n.at }
func (n *boolLit) pos() int   { return n.at }
func (n *nilLit) pos() int    { return n.at }
func (n *ident) pos() int     { return n.at }
func (n *member) pos() int    { return n.at }
func (n *index) pos() int     { return n.at }
func (n *call) pos() int      { return n.at }
func (n *unary) pos() int     { return n.at }
func (n *binary) pos() int    { return n.at }
func (n *objectLit) pos() int { return n.at }
func (n *arrayLit) pos() int  { return n.at }
func (n *letStmt) pos() int   { return n.at }

// program is a parsed action body: a list of statements.
type program struct {
	stmts []node
}
