package container

import "fmt"

// Lifetime determines when a resolved instance is reused vs. freshly
// created, per spec §3.
type Lifetime int

const (
	// Singleton instances are created once per Container and reused for
	// its lifetime.
	Singleton Lifetime = iota
	// Scoped instances are created once per Scope and reused for the
	// scope's lifetime.
	Scoped
	// Transient instances are created fresh on every resolve and never
	// cached.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "Singleton"
	case Scoped:
		return "Scoped"
	case Transient:
		return "Transient"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// IsValid reports whether l is one of the three defined lifetimes.
func (l Lifetime) IsValid() bool {
	return l >= Singleton && l <= Transient
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifetime) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifetime) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Singleton", "singleton":
		*l = Singleton
	case "Scoped", "scoped":
		*l = Scoped
	case "Transient", "transient":
		*l = Transient
	default:
		return &LifetimeError{Value: Lifetime(-1), Text: string(text)}
	}
	return nil
}
