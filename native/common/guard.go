package common

import "strings"

// PauseView exposes the operator pause switches for native modules.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating calls into a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

// NewStaticPauses builds a StaticPauses view from configured module names.
func NewStaticPauses(modules []string) StaticPauses {
	out := make(StaticPauses, len(modules))
	for _, m := range modules {
		trimmed := strings.ToLower(strings.TrimSpace(m))
		if trimmed == "" {
			continue
		}
		out[trimmed] = true
	}
	return out
}

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[strings.ToLower(module)]
}
