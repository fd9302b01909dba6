package interp

import (
	"fmt"
	"strconv"
	"strings"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokNewline
)

type tok struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

// lex splits snippet source into tokens. Newlines separate statements,
// so they are emitted as tokens, but only at bracket depth zero: inside
// parentheses, brackets or braces a line break is just whitespace.
func lex(src string) ([]tok, error) {
	var toks []tok
	depth := 0
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '\n':
			if depth == 0 {
				if len(toks) > 0 && toks[len(toks)-1].kind != tokNewline {
					toks = append(toks, tok{kind: tokNewline, text: "\n", pos: i})
				}
			}
			i++
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '"' || c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok{kind: tokString, text: s, pos: i})
			i = next
		case c >= '0' && c <= '9':
			start := i
			for i < n && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			text := src[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &ParseError{Pos: start, Msg: fmt.Sprintf("malformed number %q", text)}
			}
			toks = append(toks, tok{kind: tokNumber, text: text, num: num, pos: start})
		case isLetter(c):
			start := i
			for i < n && (isLetter(src[i]) || src[i] >= '0' && src[i] <= '9') {
				i++
			}
			toks = append(toks, tok{kind: tokIdent, text: src[start:i], pos: start})
		default:
			op, width := lexOp(src, i)
			if op == "" {
				return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", string(c))}
			}
			switch op {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth > 0 {
					depth--
				}
			}
			toks = append(toks, tok{kind: tokOp, text: op, pos: i})
			i += width
		}
	}
	toks = append(toks, tok{kind: tokEOF, pos: n})
	return toks, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	n := len(src)
	for i < n {
		c := src[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c == '\\' {
			if i+1 >= n {
				break
			}
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			default:
				return "", 0, &ParseError{Pos: i, Msg: fmt.Sprintf("unsupported escape \\%s", string(src[i]))}
			}
			i++
			continue
		}
		if c == '\n' {
			break
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, &ParseError{Pos: start, Msg: "unterminated string literal"}
}

var ops = []string{
	"==", "!=", "<=", ">=", "&&", "||",
	"(", ")", "[", "]", "{", "}",
	",", ";", ":", ".",
	"<", ">", "+", "-", "*", "/", "%", "!", "=",
}

func lexOp(src string, i int) (string, int) {
	for _, op := range ops {
		if strings.HasPrefix(src[i:], op) {
			return op, len(op)
		}
	}
	return "", 0
}

func isLetter(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
