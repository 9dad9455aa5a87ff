package probe

// Accessor yields one candidate value from a loosely specified response.
// Accessors must tolerate missing intermediate fields and return "" when
// their path is absent.
type Accessor func() string

// FirstNonEmpty evaluates accessors in order and returns the first non-empty
// value. Accessors after the winning one are not evaluated.
func FirstNonEmpty(accessors ...Accessor) (string, bool) {
	for _, fn := range accessors {
		if fn == nil {
			continue
		}
		if v := fn(); v != "" {
			return v, true
		}
	}
	return "", false
}
