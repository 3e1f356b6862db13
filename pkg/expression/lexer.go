package expression

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	val  any
	pos  int
}

var twoCharOps = []string{"?.", "==", "!=", "<=", ">=", "&&", "||"}

const oneCharOps = ".[](),<>!-"

// lex splits src into tokens. base is added to every position so errors
// point into the enclosing template.
func lex(src string, base int) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: base + start})

		case r >= '0' && r <= '9':
			tok, n, err := lexNumber(src[i:], base+i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n

		case r == '\'' || r == '"':
			tok, n, err := lexString(src[i:], base+i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n

		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: base + i})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.ContainsRune(oneCharOps, r) {
				toks = append(toks, token{kind: tokOp, text: string(r), pos: base + i})
				i += size
				continue
			}
			return nil, &ParseError{Pos: base + i, Msg: "unexpected character " + strconv.QuoteRune(r)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: base + len(src)}), nil
}

func lexNumber(src string, pos int) (token, int, error) {
	i := 0
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	isFloat := false
	if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
		isFloat = true
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	text := src[:i]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, &ParseError{Pos: pos, Msg: "invalid number " + text, Err: err}
		}
		return token{kind: tokNumber, text: text, val: f, pos: pos}, i, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, 0, &ParseError{Pos: pos, Msg: "invalid number " + text, Err: err}
	}
	return token{kind: tokNumber, text: text, val: n, pos: pos}, i, nil
}

func lexString(src string, pos int) (token, int, error) {
	quote := src[0]
	var b strings.Builder
	i := 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: src[:i+1], val: b.String(), pos: pos}, i + 1, nil
		case c == '\\' && i+1 < len(src):
			switch esc := src[i+1]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, &ParseError{Pos: pos, Msg: "unterminated string"}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
