package validator

// tokenKind classifies lexical tokens for the rule checks. The
// tokenizer is intentionally permissive: it never rejects input, it
// only decomposes it so the checks can reason about whole tokens and
// adjacency instead of raw substrings.
type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenString
	tokenOperator
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits source into tokens, stripping string and template
// literal bodies. Stripped bodies are returned separately so the
// string-content heuristic can inspect them; the token stream carries
// an empty placeholder in their place, which keeps content embedded in
// strings from triggering (or masking) the adjacency checks.
func tokenize(src string) (tokens []token, stringBodies []string) {
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			i += 2
			for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i += 2
			if i > n {
				i = n
			}
		case c == '\'' || c == '"' || c == '`':
			body, next := scanString(src, i)
			stringBodies = append(stringBodies, body)
			tokens = append(tokens, token{kind: tokenString, text: "", pos: i})
			i = next
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: src[start:i], pos: start})
		case c >= '0' && c <= '9':
			start := i
			for i < n && isNumberPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: src[start:i], pos: start})
		default:
			start := i
			text, width := scanOperator(src, i)
			i += width
			kind := tokenOperator
			switch c {
			case '(', ')', '[', ']', '{', '}', ',', ';', ':', '.':
				kind = tokenPunct
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})
		}
	}
	return tokens, stringBodies
}

// scanString consumes a quoted literal starting at src[start] and
// returns its body (without quotes) and the index just past the
// closing quote. Backslash escapes are honored; an unterminated
// literal consumes the rest of the input.
func scanString(src string, start int) (body string, next int) {
	quote := src[start]
	i := start + 1
	n := len(src)
	from := i
	for i < n {
		if src[i] == '\\' && i+1 < n {
			i += 2
			continue
		}
		if src[i] == quote {
			return src[from:i], i + 1
		}
		i++
	}
	return src[from:], n
}

var multiCharOperators = []string{
	"===", "!==", "=>", "==", "!=", "<=", ">=", "&&", "||",
}

func scanOperator(src string, start int) (text string, width int) {
	for _, op := range multiCharOperators {
		if len(src)-start >= len(op) && src[start:start+len(op)] == op {
			return op, len(op)
		}
	}
	return src[start : start+1], 1
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isNumberPart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'x' || c == 'X' ||
		(c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') ||
		c == 'e' || c == 'E'
}
