package models

// Fields is the ordered, typed output of record assembly.
// Values are string, int, int64, float64, bool, []string or nil.
type Fields struct {
	names  []string
	values map[string]any
}

// NewFields creates an empty Fields
func NewFields() Fields {
	return Fields{values: make(map[string]any)}
}

// Set stores a value, keeping the original position of an existing name
func (f *Fields) Set(name string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

// Get returns the value of a field and whether it exists
func (f Fields) Get(name string) (any, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Names returns the field names in order
func (f Fields) Names() []string {
	return append([]string(nil), f.names...)
}

// Clone returns a deep copy; list values get their own backing arrays
func (f Fields) Clone() Fields {
	out := NewFields()
	for _, n := range f.names {
		out.Set(n, cloneValue(f.values[n]))
	}
	return out
}

func cloneValue(v any) any {
	if list, ok := v.([]string); ok && list != nil {
		return append([]string(nil), list...)
	}
	return v
}

// Len returns the number of fields
func (f Fields) Len() int {
	return len(f.names)
}

func (f Fields) String(name string) string {
	s, _ := f.values[name].(string)
	return s
}

// Int returns an integer field; int, int64 and whole float64 values qualify
func (f Fields) Int(name string) (int64, bool) {
	switch v := f.values[name].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

func (f Fields) Float(name string) (float64, bool) {
	switch v := f.values[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (f Fields) Bool(name string) bool {
	b, _ := f.values[name].(bool)
	return b
}

func (f Fields) Strings(name string) []string {
	s, _ := f.values[name].([]string)
	return s
}

// Merge returns a new Fields holding f followed by other.
// On a name collision the value from other wins.
func (f Fields) Merge(other Fields) Fields {
	out := NewFields()
	for _, n := range f.names {
		out.Set(n, f.values[n])
	}
	for _, n := range other.names {
		out.Set(n, other.values[n])
	}
	return out
}
