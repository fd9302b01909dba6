// Package validator implements the static gate that inspects snippet
// source before it is ever interpreted. Validation is a pure function
// of source text and configuration: no I/O, no state, deterministic.
// All checks run on every call so the caller sees the complete risk
// picture rather than the first failure.
package validator

import (
	"fmt"
	"strings"
)

type pair struct {
	first  string
	second string
}

// Validator applies the configured rule set to snippet source.
type Validator struct {
	cfg       Config
	blocked   map[string]struct{}
	sequences map[pair]string
	pollution map[string]struct{}
}

// New builds a Validator, filling unset config fields from defaults.
func New(cfg Config) *Validator {
	cfg = cfg.withDefaults()
	v := &Validator{
		cfg:       cfg,
		blocked:   make(map[string]struct{}, len(cfg.Blocklist)),
		sequences: make(map[pair]string, len(cfg.Sequences)),
		pollution: make(map[string]struct{}, len(cfg.PollutionVocab)),
	}
	for _, name := range cfg.Blocklist {
		v.blocked[name] = struct{}{}
	}
	for _, seq := range cfg.Sequences {
		label := seq.Label
		if label == "" {
			label = "dangerous sequence"
		}
		v.sequences[pair{seq.First, seq.Second}] = label
	}
	for _, name := range cfg.PollutionVocab {
		v.pollution[name] = struct{}{}
	}
	return v
}

// Validate inspects code and returns the full set of violations and
// warnings. Violations of any severity block execution; warnings never
// do. Oversized input is analyzed only up to the configured ceiling so
// runtime stays bounded by MaxCodeSize regardless of what arrives.
func (v *Validator) Validate(code string) Result {
	var violations, warnings []Violation

	analyzed := code
	if len(code) > v.cfg.MaxCodeSize {
		violations = append(violations, Violation{
			Kind:     KindSize,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("source is %d bytes, limit is %d", len(code), v.cfg.MaxCodeSize),
		})
		analyzed = code[:v.cfg.MaxCodeSize]
	}

	tokens, stringBodies := tokenize(analyzed)

	violations = append(violations, v.checkBlocklist(tokens)...)
	violations = append(violations, v.checkSequences(tokens)...)
	violations = append(violations, v.checkPollution(tokens)...)

	balance, depth := checkBalance(tokens)
	violations = append(violations, balance...)

	warnings = append(warnings, v.checkObfuscation(analyzed, tokens, depth)...)
	warnings = append(warnings, checkStringBodies(stringBodies)...)

	risk := SeverityLow
	for _, vio := range violations {
		risk = MaxSeverity(risk, vio.Severity)
	}
	for _, w := range warnings {
		risk = MaxSeverity(risk, w.Severity)
	}

	return Result{
		Valid:      len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
		Risk:       risk,
	}
}

func (v *Validator) checkBlocklist(tokens []token) []Violation {
	var out []Violation
	for _, tok := range tokens {
		if tok.kind != tokenIdent {
			continue
		}
		if _, ok := v.blocked[tok.text]; ok {
			out = append(out, Violation{
				Kind:     KindBlockedIdentifier,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("forbidden identifier %q at offset %d", tok.text, tok.pos),
			})
		}
	}
	return out
}

func (v *Validator) checkSequences(tokens []token) []Violation {
	var out []Violation
	for i := 0; i+1 < len(tokens); i++ {
		label, ok := v.sequences[pair{tokens[i].text, tokens[i+1].text}]
		if !ok {
			continue
		}
		out = append(out, Violation{
			Kind:     KindDangerousSequence,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%s: %q followed by %q at offset %d", label, tokens[i].text, tokens[i+1].text, tokens[i].pos),
		})
	}
	return out
}

func (v *Validator) checkPollution(tokens []token) []Violation {
	var out []Violation
	for _, tok := range tokens {
		if tok.kind != tokenIdent {
			continue
		}
		if _, ok := v.pollution[tok.text]; ok {
			out = append(out, Violation{
				Kind:     KindPrototypePollution,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("prototype-chain vocabulary %q at offset %d", tok.text, tok.pos),
			})
		}
	}
	return out
}

var closerFor = map[string]string{"(": ")", "[": "]", "{": "}"}

// checkBalance runs stack-based delimiter matching. Unmatched
// delimiters are a structural anomaly (content-construction tricks),
// not merely a syntax error, hence a high violation rather than a
// warning. It also reports the maximum nesting depth observed for the
// obfuscation heuristic.
func checkBalance(tokens []token) (violations []Violation, maxDepth int) {
	var stack []string
	for _, tok := range tokens {
		if tok.kind != tokenPunct {
			continue
		}
		switch tok.text {
		case "(", "[", "{":
			stack = append(stack, closerFor[tok.text])
			if len(stack) > maxDepth {
				maxDepth = len(stack)
			}
		case ")", "]", "}":
			if len(stack) == 0 || stack[len(stack)-1] != tok.text {
				violations = append(violations, Violation{
					Kind:     KindUnbalancedDelimiters,
					Severity: SeverityHigh,
					Message:  fmt.Sprintf("unmatched %q at offset %d", tok.text, tok.pos),
				})
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		violations = append(violations, Violation{
			Kind:     KindUnbalancedDelimiters,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d unclosed delimiter(s) at end of input", len(stack)),
		})
	}
	return violations, maxDepth
}

var charCodeIdents = map[string]struct{}{
	"fromCharCode": {}, "charCodeAt": {}, "codePointAt": {},
}

var base64Idents = map[string]struct{}{
	"atob": {}, "btoa": {}, "base64": {},
}

func (v *Validator) checkObfuscation(src string, tokens []token, depth int) []Violation {
	var out []Violation
	for _, tok := range tokens {
		if tok.kind != tokenIdent {
			continue
		}
		if _, ok := charCodeIdents[tok.text]; ok {
			out = append(out, Violation{
				Kind:     KindObfuscation,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("character-code construction via %q", tok.text),
			})
		}
		if _, ok := base64Idents[tok.text]; ok {
			out = append(out, Violation{
				Kind:     KindObfuscation,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("base64 encode/decode via %q", tok.text),
			})
		}
	}
	if depth > v.cfg.MaxNestingDepth {
		out = append(out, Violation{
			Kind:     KindObfuscation,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("nesting depth %d exceeds %d", depth, v.cfg.MaxNestingDepth),
		})
	}
	if n := strings.Count(src, `\x`) + strings.Count(src, `\u`); n > 0 {
		out = append(out, Violation{
			Kind:     KindObfuscation,
			Severity: SeverityLow,
			Message:  fmt.Sprintf("%d hex/unicode escape sequence(s)", n),
		})
	}
	return out
}

// checkStringBodies flags string literals whose content itself looks
// like code (function definitions or call expressions), the usual
// smuggling vector for a second-stage payload.
func checkStringBodies(bodies []string) []Violation {
	var out []Violation
	for _, body := range bodies {
		if body == "" {
			continue
		}
		if stringLooksLikeCode(body) {
			out = append(out, Violation{
				Kind:     KindStringCode,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("string literal resembles executable code: %s", truncate(body, 40)),
			})
		}
	}
	return out
}

func stringLooksLikeCode(body string) bool {
	tokens, _ := tokenize(body)
	for i, tok := range tokens {
		if tok.kind == tokenIdent && tok.text == "function" {
			return true
		}
		if tok.kind == tokenOperator && tok.text == "=>" {
			return true
		}
		if tok.kind == tokenIdent && i+1 < len(tokens) && tokens[i+1].text == "(" {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
