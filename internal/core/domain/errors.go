package domain

import "fmt"

// ConfigurationError reports deployment configuration that cannot produce a
// LaunchSpec. It is surfaced to the requester before any launch attempt.
type ConfigurationError struct {
	Plugin string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("plugin %q: %s", e.Plugin, e.Reason)
	}
	return fmt.Sprintf("plugin %q: field %q: %s", e.Plugin, e.Field, e.Reason)
}

// LaunchError reports a failed container start or port allocation for a
// session. Diagnostics carries whatever the runtime reported.
type LaunchError struct {
	SessionID   string
	Diagnostics string
	Err         error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launch session %q failed", e.SessionID)
	if e.Diagnostics != "" {
		msg += ": " + e.Diagnostics
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TemplateError reports a placeholder referenced by a URL or env template
// that has no bound value.
type TemplateError struct {
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template placeholder ${%s} has no bound value", e.Placeholder)
}
