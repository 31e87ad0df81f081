package env

import "os"

// Provider abstracts reads of the process environment so services can be
// tested against deterministic values instead of mutating the real
// environment.
type Provider interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

// OSProvider reads from the real process environment.
type OSProvider struct{}

// NewOSProvider creates a provider backed by the process environment.
func NewOSProvider() *OSProvider { return &OSProvider{} }

func (p *OSProvider) Getenv(key string) string { return os.Getenv(key) }

func (p *OSProvider) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// MapProvider serves values from a fixed map. Missing keys read as empty,
// matching os.Getenv semantics.
type MapProvider struct {
	values map[string]string
}

// NewMapProvider creates a provider over a copy of the given values.
func NewMapProvider(values map[string]string) *MapProvider {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapProvider{values: copied}
}

func (p *MapProvider) Getenv(key string) string { return p.values[key] }

func (p *MapProvider) LookupEnv(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set adds or replaces a value. Intended for test setup.
func (p *MapProvider) Set(key, value string) { p.values[key] = value }

var (
	_ Provider = (*OSProvider)(nil)
	_ Provider = (*MapProvider)(nil)
)
