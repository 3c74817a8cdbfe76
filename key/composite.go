package key

import "strings"

// Composite concatenates two sub-keys with sep, failing (absent) if
// either child is absent.
type Composite[R any] struct {
	A, B Key[R]
	Sep  string
}

func (c Composite[R]) Extract(r R) (string, bool) {
	a, ok := c.A.Extract(r)
	if !ok {
		return "", false
	}
	b, ok := c.B.Extract(r)
	if !ok {
		return "", false
	}
	sep := c.Sep
	if sep == "" {
		sep = ":"
	}
	return a + sep + b, true
}

func (c Composite[R]) Name() string { return "composite2" }

// Composite3 concatenates three sub-keys with sep, failing if any child
// is absent.
type Composite3[R any] struct {
	A, B, C Key[R]
	Sep     string
}

func (c Composite3[R]) Extract(r R) (string, bool) {
	sep := c.Sep
	if sep == "" {
		sep = ":"
	}
	parts := make([]string, 0, 3)
	for _, k := range []Key[R]{c.A, c.B, c.C} {
		v, ok := k.Extract(r)
		if !ok {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, sep), true
}

func (c Composite3[R]) Name() string { return "composite3" }

// Either uses A's value if present, else falls back to B.
type Either[R any] struct {
	A, B Key[R]
}

func (e Either[R]) Extract(r R) (string, bool) {
	if v, ok := e.A.Extract(r); ok {
		return v, true
	}
	return e.B.Extract(r)
}

func (e Either[R]) Name() string { return "either" }

// Optional never fails: it substitutes Default when Inner is absent.
type Optional[R any] struct {
	Inner   Key[R]
	Default string
}

func (o Optional[R]) Extract(r R) (string, bool) {
	if v, ok := o.Inner.Extract(r); ok {
		return v, true
	}
	return o.Default, true
}

func (o Optional[R]) Name() string { return "optional" }
