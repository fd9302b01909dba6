package interp

import "fmt"

// maxParseDepth caps expression nesting so a pathological snippet
// cannot blow the parser's stack. The validator warns well below this.
const maxParseDepth = 200

type parser struct {
	toks  []tok
	i     int
	depth int
}

// parseExpr parses source as a single expression, the condition shape.
// Newlines are insignificant here (there are no statements to
// separate), and trailing tokens are an error: a condition is one
// expression, not a statement list.
func parseExpr(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	kept := toks[:0]
	for _, t := range toks {
		if t.kind != tokNewline {
			kept = append(kept, t)
		}
	}
	p := &parser{toks: kept}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if cur := p.cur(); cur.kind != tokEOF {
		return nil, &ParseError{Pos: cur.pos, Msg: fmt.Sprintf("unexpected %q after expression", cur.text)}
	}
	return n, nil
}

// parseProgram parses source as a statement list, the action shape.
// Statements are separated by semicolons or newlines.
func parseProgram(src string) (*program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &program{}
	p.skipSeparators()
	for p.cur().kind != tokEOF {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.stmts = append(prog.stmts, stmt)
		if cur := p.cur(); cur.kind != tokEOF {
			if !p.isSeparator() {
				return nil, &ParseError{Pos: cur.pos, Msg: fmt.Sprintf("expected statement separator, got %q", cur.text)}
			}
			p.skipSeparators()
		}
	}
	return prog, nil
}

func (p *parser) statement() (node, error) {
	if cur := p.cur(); cur.kind == tokIdent && cur.text == "let" {
		at := cur.pos
		p.i++
		nameTok := p.cur()
		if nameTok.kind != tokIdent {
			return nil, &ParseError{Pos: nameTok.pos, Msg: "expected identifier after let"}
		}
		if isReserved(nameTok.text) {
			return nil, &ParseError{Pos: nameTok.pos, Msg: fmt.Sprintf("cannot bind reserved word %q", nameTok.text)}
		}
		p.i++
		if eq := p.cur(); eq.kind != tokOp || eq.text != "=" {
			return nil, &ParseError{Pos: eq.pos, Msg: "expected = in let statement"}
		}
		p.i++
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &letStmt{name: nameTok.text, x: x, at: at}, nil
	}
	return p.expression()
}

func (p *parser) expression() (node, error) {
	if p.depth++; p.depth > maxParseDepth {
		return nil, &ParseError{Pos: p.cur().pos, Msg: "expression nesting too deep"}
	}
	defer func() { p.depth-- }()
	return p.or()
}

func (p *parser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.matchOp("||") {
		at := p.prev().pos
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = &binary{op: "||", l: l, r: r, at: at}
	}
	return l, nil
}

func (p *parser) and() (node, error) {
	l, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.matchOp("&&") {
		at := p.prev().pos
		r, err := p.equality()
		if err != nil {
			return nil, err
		}
		l = &binary{op: "&&", l: l, r: r, at: at}
	}
	return l, nil
}

func (p *parser) equality() (node, error) {
	l, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp("==", "!=")
		if !ok {
			return l, nil
		}
		at := p.prev().pos
		r, err := p.comparison()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r, at: at}
	}
}

func (p *parser) comparison() (node, error) {
	l, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp("<=", ">=", "<", ">")
		if !ok {
			return l, nil
		}
		at := p.prev().pos
		r, err := p.additive()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r, at: at}
	}
}

func (p *parser) additive() (node, error) {
	l, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp("+", "-")
		if !ok {
			return l, nil
		}
		at := p.prev().pos
		r, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r, at: at}
	}
}

func (p *parser) multiplicative() (node, error) {
	l, err := p.unaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp("*", "/", "%")
		if !ok {
			return l, nil
		}
		at := p.prev().pos
		r, err := p.unaryExpr()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r, at: at}
	}
}

func (p *parser) unaryExpr() (node, error) {
	if op, ok := p.matchAnyOp("!", "-"); ok {
		at := p.prev().pos
		x, err := p.unaryExpr()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x, at: at}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.matchOp("."):
			nameTok := p.cur()
			if nameTok.kind != tokIdent {
				return nil, &ParseError{Pos: nameTok.pos, Msg: "expected field name after ."}
			}
			p.i++
			x = &member{x: x, name: nameTok.text, at: nameTok.pos}
		case p.matchOp("["):
			at := p.prev().pos
			idx, err := p.expression()
			if err != nil {
				return nil, err
			}
			if !p.matchOp("]") {
				return nil, &ParseError{Pos: p.cur().pos, Msg: "expected ]"}
			}
			x = &index{x: x, i: idx, at: at}
		case p.matchOp("("):
			at := p.prev().pos
			callee, ok := x.(*ident)
			if !ok {
				return nil, &ParseError{Pos: at, Msg: "only named capabilities can be called"}
			}
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			x = &call{fn: callee.name, args: args, at: callee.at}
		default:
			return x, nil
		}
	}
}

func (p *parser) arguments() ([]node, error) {
	var args []node
	if p.matchOp(")") {
		return args, nil
	}
	for {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.matchOp(",") {
			continue
		}
		if p.matchOp(")") {
			return args, nil
		}
		return nil, &ParseError{Pos: p.cur().pos, Msg: "expected , or ) in argument list"}
	}
}

func (p *parser) primary() (node, error) {
	cur := p.cur()
	switch cur.kind {
	case tokNumber:
		p.i++
		return &numberLit{value: cur.num, at: cur.pos}, nil
	case tokString:
		p.i++
		return &stringLit{value: cur.text, at: cur.pos}, nil
	case tokIdent:
		p.i++
		switch cur.text {
		case "true":
			return &boolLit{value: true, at: cur.pos}, nil
		case "false":
			return &boolLit{value: false, at: cur.pos}, nil
		case "nil", "null":
			return &nilLit{at: cur.pos}, nil
		case "let":
			return nil, &ParseError{Pos: cur.pos, Msg: "let is only allowed at statement start"}
		}
		return &ident{name: cur.text, at: cur.pos}, nil
	case tokOp:
		switch cur.text {
		case "(":
			p.i++
			x, err := p.expression()
			if err != nil {
				return nil, err
			}
			if !p.matchOp(")") {
				return nil, &ParseError{Pos: p.cur().pos, Msg: "expected )"}
			}
			return x, nil
		case "{":
			return p.objectLiteral()
		case "[":
			return p.arrayLiteral()
		}
	}
	return nil, &ParseError{Pos: cur.pos, Msg: fmt.Sprintf("unexpected %s", describe(cur))}
}

func (p *parser) objectLiteral() (node, error) {
	at := p.cur().pos
	p.i++ // consume {
	obj := &objectLit{at: at}
	if p.matchOp("}") {
		return obj, nil
	}
	for {
		keyTok := p.cur()
		var key string
		switch keyTok.kind {
		case tokIdent:
			key = keyTok.text
		case tokString:
			key = keyTok.text
		default:
			return nil, &ParseError{Pos: keyTok.pos, Msg: "expected object key"}
		}
		p.i++
		if !p.matchOp(":") {
			return nil, &ParseError{Pos: p.cur().pos, Msg: "expected : after object key"}
		}
		val, err := p.expression()
		if err != nil {
			return nil, err
		}
		obj.keys = append(obj.keys, key)
		obj.vals = append(obj.vals, val)
		if p.matchOp(",") {
			continue
		}
		if p.matchOp("}") {
			return obj, nil
		}
		return nil, &ParseError{Pos: p.cur().pos, Msg: "expected , or } in object literal"}
	}
}

func (p *parser) arrayLiteral() (node, error) {
	at := p.cur().pos
	p.i++ // consume [
	arr := &arrayLit{at: at}
	if p.matchOp("]") {
		return arr, nil
	}
	for {
		el, err := p.expression()
		if err != nil {
			return nil, err
		}
		arr.elems = append(arr.elems, el)
		if p.matchOp(",") {
			continue
		}
		if p.matchOp("]") {
			return arr, nil
		}
		return nil, &ParseError{Pos: p.cur().pos, Msg: "expected , or ] in array literal"}
	}
}

func (p *parser) cur() tok {
	return p.toks[p.i]
}

func (p *parser) prev() tok {
	return p.toks[p.i-1]
}

func (p *parser) matchOp(text string) bool {
	if cur := p.cur(); cur.kind == tokOp && cur.text == text {
		p.i++
		return true
	}
	return false
}

func (p *parser) matchAnyOp(texts ...string) (string, bool) {
	for _, text := range texts {
		if p.matchOp(text) {
			return text, true
		}
	}
	return "", false
}

func (p *parser) isSeparator() bool {
	cur := p.cur()
	return cur.kind == tokNewline || (cur.kind == tokOp && cur.text == ";")
}

func (p *parser) skipSeparators() {
	for p.isSeparator() {
		p.i++
	}
}

func isReserved(name string) bool {
	switch name {
	case "let", "true", "false", "nil", "null":
		return true
	}
	return false
}

func describe(t tok) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "line break"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}
