package pipeline

import "fmt"

// ConfigError reports an invalid run request. Runs that return it have not
// issued any network requests.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
