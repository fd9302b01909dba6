package validator

// Sequence is a dangerous adjacent-token pair: an identifier followed
// by the call/index/assignment token that together form a known escape
// primitive.
type Sequence struct {
	First  string `json:"first" yaml:"first"`
	Second string `json:"second" yaml:"second"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Config holds the tunable parts of the validator. Zero values fall
// back to the defaults, so a partially populated config (e.g. only a
// custom size limit from YAML) still carries the full rule set.
type Config struct {
	MaxCodeSize     int        `json:"max_code_size" yaml:"max_code_size"`
	MaxNestingDepth int        `json:"max_nesting_depth" yaml:"max_nesting_depth"`
	Blocklist       []string   `json:"blocklist" yaml:"blocklist"`
	Sequences       []Sequence `json:"sequences" yaml:"sequences"`
	PollutionVocab  []string   `json:"pollution_vocab" yaml:"pollution_vocab"`
}

// DefaultConfig returns the stock rule set: host globals, I/O
// primitives, reflection entry points and script-loading primitives on
// the blocklist, plus the classic escape-primitive bigrams.
func DefaultConfig() Config {
	return Config{
		MaxCodeSize:     10_000,
		MaxNestingDepth: 10,
		Blocklist: []string{
			"eval", "Function", "require", "import",
			"process", "globalThis", "window", "document", "global",
			"XMLHttpRequest", "fetch", "WebSocket", "Worker",
			"setTimeout", "setInterval", "setImmediate", "queueMicrotask",
			"Reflect", "Proxy",
			"child_process", "execSync", "spawnSync",
		},
		Sequences: []Sequence{
			{First: "eval", Second: "(", Label: "dynamic evaluation"},
			{First: "Function", Second: "(", Label: "constructor-based evaluation"},
			{First: "constructor", Second: "(", Label: "constructor invocation"},
			{First: "constructor", Second: "[", Label: "computed constructor access"},
			{First: "setTimeout", Second: "(", Label: "deferred execution"},
			{First: "setInterval", Second: "(", Label: "deferred execution"},
			{First: "setImmediate", Second: "(", Label: "deferred execution"},
			{First: "import", Second: "(", Label: "dynamic import"},
			{First: "require", Second: "(", Label: "module loading"},
			{First: "__proto__", Second: "=", Label: "prototype mutation"},
			{First: "prototype", Second: "=", Label: "prototype reassignment"},
		},
		PollutionVocab: []string{
			"__proto__", "prototype", "setPrototypeOf",
			"defineProperty", "defineProperties",
			"__defineGetter__", "__defineSetter__",
		},
	}
}

// withDefaults fills any unset field from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxCodeSize <= 0 {
		c.MaxCodeSize = def.MaxCodeSize
	}
	if c.MaxNestingDepth <= 0 {
		c.MaxNestingDepth = def.MaxNestingDepth
	}
	if len(c.Blocklist) == 0 {
		c.Blocklist = def.Blocklist
	}
	if len(c.Sequences) == 0 {
		c.Sequences = def.Sequences
	}
	if len(c.PollutionVocab) == 0 {
		c.PollutionVocab = def.PollutionVocab
	}
	return c
}
