// Package envprovider isolates the process-global lookups that binding
// predicates need (environment variables, feature flags, the active
// profile) behind an interface, so tests can swap in a fake without
// mutating real process state.
package envprovider

import (
	"os"
	"strings"
	"sync"
)

// Provider answers the three questions a conditional binding asks.
type Provider interface {
	// Lookup returns the value of an environment variable and whether it
	// was set.
	Lookup(key string) (string, bool)

	// FeatureEnabled reports whether FEATURE_<UPPERCASE_NAME> is present.
	FeatureEnabled(name string) bool

	// Profile returns the active profile, defaulting to "development".
	Profile() string
}

// OS is the default Provider, backed by real process environment
// variables.
type OS struct{}

var _ Provider = OS{}

func (OS) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (OS) FeatureEnabled(name string) bool {
	_, ok := os.LookupEnv("FEATURE_" + strings.ToUpper(name))
	return ok
}

func (OS) Profile() string {
	if p, ok := os.LookupEnv("PROFILE"); ok && p != "" {
		return p
	}
	return "development"
}

// Fake is an in-memory Provider for tests, safe for concurrent use.
type Fake struct {
	mu       sync.RWMutex
	vars     map[string]string
	features map[string]bool
	profile  string
}

var _ Provider = (*Fake)(nil)

// NewFake creates a Fake with the "development" profile and no
// variables or features set.
func NewFake() *Fake {
	return &Fake{
		vars:     make(map[string]string),
		features: make(map[string]bool),
		profile:  "development",
	}
}

func (f *Fake) SetEnv(key, value string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[key] = value
	return f
}

func (f *Fake) SetFeature(name string, enabled bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features[strings.ToUpper(name)] = enabled
	return f
}

func (f *Fake) SetProfile(profile string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
	return f
}

func (f *Fake) Lookup(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.vars[key]
	return v, ok
}

func (f *Fake) FeatureEnabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.features[strings.ToUpper(name)]
}

func (f *Fake) Profile() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.profile
}
