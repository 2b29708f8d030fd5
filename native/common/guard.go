package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by Guard when an operator has halted a module.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause flag of a module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view or an
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
