package expression

import (
	"fmt"

	"github.com/getmockd/bizlog/pkg/formatter"
)

// parser is a recursive-descent parser over a token slice.
//
//	or      := and ('||' and)*
//	and     := cmp ('&&' cmp)*
//	cmp     := unary (('=='|'!='|'<'|'<='|'>'|'>=') unary)*
//	unary   := ('!'|'-') unary | postfix
//	postfix := primary ('.' ident | '?.' ident | '[' or ']')*
//	primary := literal | ident | ident '(' args ')' | '(' or ')'
type parser struct {
	toks  []token
	i     int
	funcs Formatters
	calls []*callNode
}

func parseExpr(src string, base int, funcs Formatters) (node, []*callNode, error) {
	toks, err := lex(src, base)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, funcs: funcs}
	if p.peek().kind == tokEOF {
		return nil, nil, &ParseError{Pos: base, Msg: "empty expression"}
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, nil, p.unexpected(tok)
	}
	return n, p.calls, nil
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) expect(op string) error {
	if !p.isOp(op) {
		return p.unexpected(p.peek())
	}
	p.next()
	return nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return &ParseError{Pos: tok.pos, Msg: "unexpected end of expression"}
	}
	return &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		p.next()
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("==", "!=", "<", "<=", ">", ">=") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("!", "-") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp(".", "?."):
			safe := p.next().text == "?."
			tok := p.next()
			if tok.kind != tokIdent {
				return nil, p.unexpected(tok)
			}
			x = &memberNode{x: x, name: tok.text, safe: safe}
		case p.isOp("["):
			p.next()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &indexNode{x: x, index: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber, tokString:
		return &literalNode{val: tok.val}, nil

	case tokIdent:
		switch tok.text {
		case "true":
			return &literalNode{val: true}, nil
		case "false":
			return &literalNode{val: false}, nil
		case "null", "nil":
			return &literalNode{val: nil}, nil
		}
		if p.isOp("(") {
			return p.parseCall(tok)
		}
		return &identNode{name: tok.text}, nil

	case tokOp:
		if tok.text == "(" {
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) parseCall(name token) (node, error) {
	if p.funcs == nil || !p.funcs.Has(name.text) {
		return nil, &ParseError{Pos: name.pos, Msg: "call to unknown formatter", Err: &formatter.UnknownError{Name: name.text}}
	}
	p.next() // (

	var args []node
	if !p.isOp(")") {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.isOp(",") {
				break
			}
			p.next()
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}

	call := &callNode{name: name.text, args: args}
	call.key = call.String()
	if p.funcs.IsBefore(name.text) {
		p.calls = append(p.calls, call)
	}
	return call, nil
}
