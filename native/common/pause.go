package common

import coreerrors "ledgerguard/core/errors"

var ErrModulePaused = coreerrors.ErrModulePaused

// PauseView reports whether an operator has paused a module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when p reports module as paused. A nil view
// or empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView built from configuration.
type PauseSet map[string]bool

// NewPauseSet marks every listed module as paused.
func NewPauseSet(modules ...string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, m := range modules {
		if m != "" {
			set[m] = true
		}
	}
	return set
}

// IsPaused implements PauseView.
func (s PauseSet) IsPaused(module string) bool { return s[module] }
