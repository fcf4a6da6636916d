package cache

import (
	"strconv"
	"strings"
)

// Part is one component of a QueryKey. An undefined part (a filter the
// caller never set) compares different from a part holding the empty
// string, so ("quotes", nil) and ("quotes", "") occupy distinct cache
// slots.
type Part struct {
	Value   string `json:"value"`
	Defined bool   `json:"defined"`
}

// P builds a defined string part.
func P(v string) Part { return Part{Value: v, Defined: true} }

// OptP builds a part from an optional value; nil means undefined.
func OptP(v *string) Part {
	if v == nil {
		return Part{}
	}
	return Part{Value: *v, Defined: true}
}

// IntP builds a defined part from an integer.
func IntP(v int) Part { return Part{Value: strconv.Itoa(v), Defined: true} }

// FloatP builds a defined part from a float.
func FloatP(v float64) Part {
	return Part{Value: strconv.FormatFloat(v, 'g', -1, 64), Defined: true}
}

// QueryKey identifies one cached query: a logical name followed by an
// ordered tuple of filter parameters. Two keys are equal iff the names
// match and every part compares equal, including definedness.
type QueryKey struct {
	Name  string `json:"name"`
	Parts []Part `json:"parts,omitempty"`
}

// NewKey builds a QueryKey from a logical name and its parameters.
func NewKey(name string, parts ...Part) QueryKey {
	return QueryKey{Name: name, Parts: parts}
}

// Equal reports component-wise equality.
func (k QueryKey) Equal(o QueryKey) bool {
	if k.Name != o.Name || len(k.Parts) != len(o.Parts) {
		return false
	}
	for i := range k.Parts {
		if k.Parts[i] != o.Parts[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether k starts with prefix: same name and every
// prefix part equal. A bare name matches every key with that name.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if k.Name != prefix.Name || len(prefix.Parts) > len(k.Parts) {
		return false
	}
	for i := range prefix.Parts {
		if k.Parts[i] != prefix.Parts[i] {
			return false
		}
	}
	return true
}

// ID returns the canonical map-key encoding. Values are escaped so a
// part containing the separator cannot collide with a part boundary.
func (k QueryKey) ID() string {
	var b strings.Builder
	b.WriteString(escapePart(k.Name))
	for _, p := range k.Parts {
		b.WriteByte(partSep)
		if !p.Defined {
			b.WriteByte(undefinedMark)
			continue
		}
		b.WriteString(escapePart(p.Value))
	}
	return b.String()
}

// String renders a readable form for logs.
func (k QueryKey) String() string {
	parts := make([]string, 0, len(k.Parts)+1)
	parts = append(parts, k.Name)
	for _, p := range k.Parts {
		if !p.Defined {
			parts = append(parts, "<unset>")
			continue
		}
		parts = append(parts, p.Value)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

const (
	partSep       = 0x1f
	undefinedMark = 0x00
	escapeMark    = 0x01
)

func escapePart(s string) string {
	if !strings.ContainsAny(s, "\x1f\x00\x01") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case partSep, undefinedMark, escapeMark:
			b.WriteByte(escapeMark)
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
