package expression

// Scope resolves root variable names.
type Scope interface {
	Lookup(name string) (any, bool)
}

// Vars is a Scope backed by a map.
type Vars map[string]any

// Lookup implements Scope.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// ScopeFunc adapts a function to Scope.
type ScopeFunc func(name string) (any, bool)

// Lookup implements Scope.
func (f ScopeFunc) Lookup(name string) (any, bool) {
	return f(name)
}

// Chain searches each scope in order and returns the first hit.
type Chain []Scope

// Lookup implements Scope.
func (c Chain) Lookup(name string) (any, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}
