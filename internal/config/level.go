// Package config holds the construction options and security-level records
// for an Enclave: one struct per concern, each with yaml/json tags, a
// Validate method, and a DefaultConfig constructor.
package config

import "fmt"

// SecurityLevel forms a strict lattice: PERMISSIVE ⊂ STANDARD ⊂ SECURE ⊂ STRICT
// of restrictions. Higher levels are never less restrictive.
type SecurityLevel int

const (
	Permissive SecurityLevel = iota
	Standard
	Secure
	Strict
)

func (l SecurityLevel) String() string {
	switch l {
	case Permissive:
		return "PERMISSIVE"
	case Standard:
		return "STANDARD"
	case Secure:
		return "SECURE"
	case Strict:
		return "STRICT"
	default:
		return "UNKNOWN"
	}
}

// ParseSecurityLevel maps a config string onto the lattice.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch s {
	case "PERMISSIVE", "permissive":
		return Permissive, nil
	case "STANDARD", "standard":
		return Standard, nil
	case "SECURE", "secure":
		return Secure, nil
	case "STRICT", "strict":
		return Strict, nil
	default:
		return Standard, fmt.Errorf("unknown security level %q", s)
	}
}

// AtLeast reports whether l is at least as restrictive as other.
func (l SecurityLevel) AtLeast(other SecurityLevel) bool { return l >= other }

// BlockedCategory groups property names blocked by the membrane.
type BlockedCategory string

const (
	CategoryPrototype        BlockedCategory = "PROTOTYPE"
	CategoryIteratorHelpers  BlockedCategory = "ITERATOR_HELPERS"
	CategoryReflection       BlockedCategory = "REFLECTION"
	CategoryTiming           BlockedCategory = "TIMING"
	CategoryLegacyAccessors  BlockedCategory = "LEGACY_ACCESSORS"
)

// LevelConfig is the config record a SecurityLevel maps to.
type LevelConfig struct {
	Level SecurityLevel `yaml:"-" json:"level"`

	// Validator rules enabled at this level.
	EnableDisallowedIdentifiers bool `yaml:"enable_disallowed_identifiers" json:"enable_disallowed_identifiers"`
	EnableConstructorObfuscation bool `yaml:"enable_constructor_obfuscation" json:"enable_constructor_obfuscation"`
	EnableComputedDestructuring bool `yaml:"enable_computed_destructuring" json:"enable_computed_destructuring"`
	EnableMetaProgrammingDenylist bool `yaml:"enable_meta_programming_denylist" json:"enable_meta_programming_denylist"`
	EnableResourceBombLiterals  bool `yaml:"enable_resource_bomb_literals" json:"enable_resource_bomb_literals"`
	EnableReDoSPrescan          bool `yaml:"enable_redos_prescan" json:"enable_redos_prescan"`
	RejectAllRegexLiterals      bool `yaml:"reject_all_regex_literals" json:"reject_all_regex_literals"`
	EnableDynamicCodeGenDeny    bool `yaml:"enable_dynamic_codegen_deny" json:"enable_dynamic_codegen_deny"`
	RestrictFunctionForms       bool `yaml:"restrict_function_forms" json:"restrict_function_forms"`

	// Membrane category mask.
	BlockedCategories map[BlockedCategory]bool `yaml:"blocked_categories" json:"blocked_categories"`

	// Globals allow-list for the UNKNOWN_GLOBAL rule.
	AllowedGlobals map[string]bool `yaml:"allowed_globals" json:"allowed_globals"`

	// Console I/O surface; console is only exposed in PERMISSIVE.
	ConsoleEnabled bool `yaml:"console_enabled" json:"console_enabled"`

	// Stack redaction.
	RedactStackTraces bool `yaml:"redact_stack_traces" json:"redact_stack_traces"`

	// StrictThrow: blocked membrane reads throw SecurityViolation instead of
	// silently yielding undefined.
	StrictThrow bool `yaml:"strict_throw" json:"strict_throw"`
}

var baseGlobals = map[string]bool{
	"Math": true, "JSON": true, "Array": true, "Object": true, "String": true,
	"Number": true, "Boolean": true, "Date": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	"encodeURI": true, "decodeURI": true, "encodeURIComponent": true, "decodeURIComponent": true,
	"callTool": true, "undefined": true, "NaN": true, "Infinity": true,
}

func cloneGlobals(extra ...string) map[string]bool {
	out := make(map[string]bool, len(baseGlobals)+len(extra))
	for k, v := range baseGlobals {
		out[k] = v
	}
	for _, e := range extra {
		out[e] = true
	}
	return out
}

// LevelConfigFor returns the canonical config record for a SecurityLevel.
func LevelConfigFor(level SecurityLevel) LevelConfig {
	switch level {
	case Permissive:
		return LevelConfig{
			Level:                         Permissive,
			EnableDisallowedIdentifiers:   true,
			EnableConstructorObfuscation:  false,
			EnableComputedDestructuring:   false,
			EnableMetaProgrammingDenylist: false,
			EnableResourceBombLiterals:    true,
			EnableReDoSPrescan:            false,
			RejectAllRegexLiterals:        false,
			EnableDynamicCodeGenDeny:      true,
			RestrictFunctionForms:         false,
			BlockedCategories: map[BlockedCategory]bool{
				CategoryPrototype: true,
			},
			AllowedGlobals:    cloneGlobals("console"),
			ConsoleEnabled:    true,
			RedactStackTraces: false,
			StrictThrow:       false,
		}
	case Standard:
		return LevelConfig{
			Level:                         Standard,
			EnableDisallowedIdentifiers:   true,
			EnableConstructorObfuscation:  true,
			EnableComputedDestructuring:   false,
			EnableMetaProgrammingDenylist: true,
			EnableResourceBombLiterals:    true,
			EnableReDoSPrescan:            true,
			RejectAllRegexLiterals:        false,
			EnableDynamicCodeGenDeny:      true,
			RestrictFunctionForms:         false,
			BlockedCategories: map[BlockedCategory]bool{
				CategoryPrototype:       true,
				CategoryLegacyAccessors: true,
			},
			AllowedGlobals:    cloneGlobals(),
			ConsoleEnabled:    false,
			RedactStackTraces: false,
			StrictThrow:       false,
		}
	case Secure:
		return LevelConfig{
			Level:                         Secure,
			EnableDisallowedIdentifiers:   true,
			EnableConstructorObfuscation:  true,
			EnableComputedDestructuring:   true,
			EnableMetaProgrammingDenylist: true,
			EnableResourceBombLiterals:    true,
			EnableReDoSPrescan:            true,
			RejectAllRegexLiterals:        true,
			EnableDynamicCodeGenDeny:      true,
			RestrictFunctionForms:         true,
			BlockedCategories: map[BlockedCategory]bool{
				CategoryPrototype:       true,
				CategoryLegacyAccessors: true,
				CategoryIteratorHelpers: true,
			},
			AllowedGlobals:    cloneGlobals(),
			ConsoleEnabled:    false,
			RedactStackTraces: false,
			StrictThrow:       true,
		}
	case Strict:
		fallthrough
	default:
		return LevelConfig{
			Level:                         Strict,
			EnableDisallowedIdentifiers:   true,
			EnableConstructorObfuscation:  true,
			EnableComputedDestructuring:   true,
			EnableMetaProgrammingDenylist: true,
			EnableResourceBombLiterals:    true,
			EnableReDoSPrescan:            true,
			RejectAllRegexLiterals:        true,
			EnableDynamicCodeGenDeny:      true,
			RestrictFunctionForms:         true,
			BlockedCategories: map[BlockedCategory]bool{
				CategoryPrototype:       true,
				CategoryLegacyAccessors: true,
				CategoryIteratorHelpers: true,
				CategoryReflection:      true,
				CategoryTiming:          true,
			},
			AllowedGlobals:    cloneGlobals(),
			ConsoleEnabled:    false,
			RedactStackTraces: true,
			StrictThrow:       true,
		}
	}
}
