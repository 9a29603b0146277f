// Package helper locates the AUR helper used for AUR-typed steps.
package helper

import (
	"log/slog"
	"os/exec"
)

// Priority is the probe order used when no helper is configured.
var Priority = []string{"paru", "yay"}

// Source answers which AUR helper to use. The configured preference wins,
// detection is the fallback.
type Source struct {
	preferred string
	priority  []string
	lookPath  func(string) (string, error)
}

type Option func(*Source)

// WithLookPath replaces the PATH probe.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Source) { s.lookPath = fn }
}

func WithPriority(names ...string) Option {
	return func(s *Source) { s.priority = names }
}

func New(preferred string, opts ...Option) *Source {
	s := &Source{
		preferred: preferred,
		priority:  Priority,
		lookPath:  exec.LookPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) PreferredHelper() (string, bool) {
	if s.preferred == "" {
		return "", false
	}
	return s.preferred, true
}

// DetectHelper returns the first helper in priority order found on PATH.
func (s *Source) DetectHelper() (string, bool) {
	for _, name := range s.priority {
		if _, err := s.lookPath(name); err == nil {
			slog.Debug("Found AUR helper.", "component", "helper", "helper", name)
			return name, true
		}
	}
	slog.Debug("No AUR helper found.", "component", "helper")
	return "", false
}

// Resolve applies preference then detection.
func (s *Source) Resolve() (string, bool) {
	if name, ok := s.PreferredHelper(); ok {
		return name, true
	}
	return s.DetectHelper()
}
