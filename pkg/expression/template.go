package expression

import (
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

type segment struct {
	literal string
	expr    node
}

// Template is a parsed message template. It is immutable and safe to share.
type Template struct {
	src      string
	segments []segment
	before   []*callNode
}

// Source returns the text the template was compiled from.
func (t *Template) Source() string {
	return t.src
}

func (t *Template) String() string {
	return t.src
}

// IsLiteral reports whether the template contains no expressions.
func (t *Template) IsLiteral() bool {
	for _, s := range t.segments {
		if s.expr != nil {
			return false
		}
	}
	return true
}

// Condition is a parsed boolean gating expression.
type Condition struct {
	src  string
	expr node
}

// Source returns the text the condition was compiled from.
func (c *Condition) Source() string {
	return c.src
}

func (c *Condition) String() string {
	return c.src
}

func parseTemplate(src string, funcs Formatters) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder
	i := 0
	for {
		open := strings.Index(src[i:], openDelim)
		if open < 0 {
			lit.WriteString(src[i:])
			break
		}
		open += i
		lit.WriteString(src[i:open])

		start := open + len(openDelim)
		end, err := findClose(src, start)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(src[start:end]) == "" {
			return nil, &ParseError{Pos: open, Msg: "empty expression"}
		}
		n, calls, err := parseExpr(src[start:end], start, funcs)
		if err != nil {
			return nil, err
		}
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
		t.segments = append(t.segments, segment{expr: n})
		t.before = append(t.before, calls...)
		i = end + len(closeDelim)
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t, nil
}

// findClose returns the offset of the "}}" closing an expression that starts
// at start. Delimiters inside quoted strings do not count.
func findClose(src string, start int) (int, error) {
	var quote byte
	for i := start; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(src[i:], closeDelim):
			return i, nil
		}
	}
	return 0, &ParseError{Pos: start - len(openDelim), Msg: "unclosed {{"}
}

func parseCondition(src string, funcs Formatters) (*Condition, error) {
	body, base := src, 0
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, openDelim) {
		base = strings.Index(src, openDelim) + len(openDelim)
		end, err := findClose(src, base)
		if err != nil {
			return nil, err
		}
		if rest := strings.TrimSpace(src[end+len(closeDelim):]); rest != "" {
			return nil, &ParseError{Pos: end + len(closeDelim), Msg: "condition must be a single expression"}
		}
		body = src[base:end]
	}
	n, _, err := parseExpr(body, base, funcs)
	if err != nil {
		return nil, err
	}
	return &Condition{src: src, expr: n}, nil
}
