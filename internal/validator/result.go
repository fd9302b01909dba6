package validator

// Severity grades how dangerous a violation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// MaxSeverity returns the graver of two severities.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// Kind identifies which check produced a violation.
type Kind string

const (
	KindSize                 Kind = "size"
	KindBlockedIdentifier    Kind = "blocked_identifier"
	KindDangerousSequence    Kind = "dangerous_sequence"
	KindUnbalancedDelimiters Kind = "unbalanced_delimiters"
	KindObfuscation          Kind = "obfuscation"
	KindPrototypePollution   Kind = "prototype_pollution"
	KindStringCode           Kind = "string_code"
)

// Violation is one finding from a single check.
type Violation struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the complete risk picture for one piece of source text.
// Violations block execution; Warnings never do. Risk is the maximum
// severity observed across both lists, SeverityLow when clean. A Result
// is produced fresh per Validate call and never mutated afterward.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`
	Risk       Severity    `json:"risk"`
}
