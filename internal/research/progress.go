// Package research runs long-lived deep-research tasks against the agent
// gateway: submit, poll to a terminal state, and record the lifecycle.
package research

import (
	"regexp"
	"strings"
)

// Canonical research phases.
const (
	PhaseSearch     = "search"
	PhaseAnalyze    = "analyze"
	PhaseSynthesize = "synthesize"
)

// percentPattern matches the first percentage in a status message.
var percentPattern = regexp.MustCompile(`(\d+)%`)

// phaseKeywords maps lower-cased English keyword stems to canonical phases.
// Stems match inflections ("searching", "analyzed", "synthesis").
var phaseKeywords = []struct {
	stem  string
	phase string
}{
	{"search", PhaseSearch},
	{"retriev", PhaseSearch},
	{"analy", PhaseAnalyze},
	{"synthes", PhaseSynthesize},
	{"summariz", PhaseSynthesize},
}

// localizedPhases maps the gateway's localized phase labels to canonical
// phases. This table mirrors the status strings the gateway is known to
// emit; anything else falls through unmatched.
var localizedPhases = map[string]string{
	"搜索": PhaseSearch,
	"检索": PhaseSearch,
	"分析": PhaseAnalyze,
	"综合": PhaseSynthesize,
	"总结": PhaseSynthesize,
	"整合": PhaseSynthesize,
}

// ExtractProgress pulls a percentage out of a human-readable status
// message. Best-effort fallback for responses without structured artifact
// metadata; the structured path is always preferred.
func ExtractProgress(message string) (int, bool) {
	m := percentPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	// The pattern guarantees digits; values above 100 are clamped since
	// status text occasionally embeds counts like "120% over budget".
	n := 0
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
		if n > 100 {
			return 100, true
		}
	}
	return n, true
}

// ExtractPhase maps a free-text status message to a canonical phase, via
// English keyword stems or the localized label table.
func ExtractPhase(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range phaseKeywords {
		if strings.Contains(lower, kw.stem) {
			return kw.phase, true
		}
	}
	for label, phase := range localizedPhases {
		if strings.Contains(message, label) {
			return phase, true
		}
	}
	return "", false
}

// CanonicalPhase normalizes a reported phase value: known names and
// localized labels map to the canonical enum, anything else passes through
// as a raw string.
func CanonicalPhase(phase string) string {
	switch strings.ToLower(phase) {
	case PhaseSearch, PhaseAnalyze, PhaseSynthesize:
		return strings.ToLower(phase)
	}
	if mapped, ok := localizedPhases[phase]; ok {
		return mapped
	}
	return phase
}
