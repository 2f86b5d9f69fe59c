package plugin

import (
	"errors"
	"fmt"
)

// ErrPluginLoad is the kind of every PluginLoadError.
var ErrPluginLoad = errors.New("plugin load failed")

// PluginLoadError reports a plugin file that could not be read, parsed, or
// validated. It never aborts a scan of other files.
type PluginLoadError struct {
	File string
	Err  error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPluginLoad, e.File, e.Err)
}

func (e *PluginLoadError) Unwrap() []error { return []error{ErrPluginLoad, e.Err} }
