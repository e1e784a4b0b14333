package parser

// Dialect recognizes and extracts one strategy's log format.
type Dialect struct {
	Name      string
	CanHandle func(text string) bool
	Extract   func(text string) (*Extraction, error)
}

// Registry is an ordered set of dialects. It is built once and read-only afterwards.
type Registry struct {
	dialects []Dialect
}

// NewRegistry creates a registry. Dialects are tried in the given order.
func NewRegistry(dialects ...Dialect) *Registry {
	r := &Registry{dialects: make([]Dialect, 0, len(dialects))}
	for _, d := range dialects {
		if d.Name == "" || d.CanHandle == nil || d.Extract == nil {
			continue
		}
		r.dialects = append(r.dialects, d)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in dialect.
func DefaultRegistry() *Registry {
	return NewRegistry(MagicLinesScalper(), SampleStrategy())
}

// Select returns the first dialect that can handle text.
func (r *Registry) Select(text string) (Dialect, bool) {
	for _, d := range r.dialects {
		if d.CanHandle(text) {
			return d, true
		}
	}
	return Dialect{}, false
}

// Names returns the registered dialect names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.dialects))
	for _, d := range r.dialects {
		names = append(names, d.Name)
	}
	return names
}
