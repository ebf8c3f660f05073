// Package safety implements the pre-model heuristic screen for inbound user
// text. The gate is a pure function of the text: pattern matching for
// instruction-override phrasing, code-execution markers and credential/PII
// leakage. It performs no I/O; rejection handling (warning frame, audit
// record) belongs to the orchestrator. False negatives are acceptable, the
// gate is defense in depth rather than a hard boundary.
package safety

import "regexp"

// Verdict is the outcome of screening one piece of text.
type Verdict struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Reason categories attached to rejections.
const (
	ReasonInstructionOverride = "instruction_override"
	ReasonCodeExecution       = "code_execution"
	ReasonCredentialLeak      = "credential_leak"
	ReasonDenyPattern         = "deny_pattern"
)

type screenPattern struct {
	re     *regexp.Regexp
	reason string
}

var builtinPatterns = []screenPattern{
	// Prompt injection / instruction override phrasing.
	{regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`), ReasonInstructionOverride},
	{regexp.MustCompile(`(?i)disregard\s+(your|the|all)\s+(instructions?|rules?|guidelines?)`), ReasonInstructionOverride},
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(the\s+|your\s+)?system\s+prompt`), ReasonInstructionOverride},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak|god)\s*mode`), ReasonInstructionOverride},
	{regexp.MustCompile(`(?i)pretend\s+(you\s+have|there\s+are)\s+no\s+(rules|restrictions|guidelines)`), ReasonInstructionOverride},

	// Code execution markers.
	{regexp.MustCompile("```"), ReasonCodeExecution},
	{regexp.MustCompile(`(?i)<script\b`), ReasonCodeExecution},
	{regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`), ReasonCodeExecution},
	{regexp.MustCompile(`(?i)\bos\.system\s*\(|\bsubprocess\.`), ReasonCodeExecution},
	{regexp.MustCompile(`(?i)\brm\s+-rf\s+/`), ReasonCodeExecution},

	// Credential / PII leakage.
	{regexp.MustCompile(`(?i)(password|passwd|api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*\S+`), ReasonCredentialLeak},
	{regexp.MustCompile(`-----BEGIN\s+(RSA|EC|DSA|OPENSSH|PGP)?\s*PRIVATE KEY-----`), ReasonCredentialLeak},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b.*\b(cvv|cvc|card)\b|\b(cvv|cvc|card)\b.*\b(?:\d[ -]?){13,16}\b`), ReasonCredentialLeak},
}

// Gate screens inbound text against a compiled pattern set. Immutable after
// construction and safe for concurrent use.
type Gate struct {
	patterns []screenPattern
}

// NewGate builds a gate from the builtin pattern set plus optional extra
// deny patterns (anchored nowhere, matched case-insensitively). An extra
// pattern that fails to compile is skipped; configuration mistakes must not
// take the gate down.
func NewGate(extraDenyPatterns ...string) *Gate {
	patterns := make([]screenPattern, len(builtinPatterns), len(builtinPatterns)+len(extraDenyPatterns))
	copy(patterns, builtinPatterns)
	for _, raw := range extraDenyPatterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			continue
		}
		patterns = append(patterns, screenPattern{re: re, reason: ReasonDenyPattern})
	}
	return &Gate{patterns: patterns}
}

// Screen evaluates raw user text. The verdict depends on nothing but the
// text, so screening the same input twice always yields the same result.
func (g *Gate) Screen(rawText string) Verdict {
	var reasons []string
	seen := map[string]bool{}
	for _, p := range g.patterns {
		if !p.re.MatchString(rawText) {
			continue
		}
		if seen[p.reason] {
			continue
		}
		seen[p.reason] = true
		reasons = append(reasons, p.reason)
	}
	return Verdict{Allowed: len(reasons) == 0, Reasons: reasons}
}
