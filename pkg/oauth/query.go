package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Values is an ordered multimap of query or form parameters. Unlike
// net/url.Values it preserves insertion order of keys and of repeated
// values per key, so that serialization is deterministic and a build
// followed by a parse reproduces the original mapping exactly.
type Values struct {
	keys []string
	m    map[string][]string
}

// NewValues returns an empty ordered parameter map.
func NewValues() *Values {
	return &Values{m: make(map[string][]string)}
}

// Add appends value to the values associated with key, registering the key
// at the current insertion position if it is new.
func (v *Values) Add(key, value string) {
	if v.m == nil {
		v.m = make(map[string][]string)
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = append(v.m[key], value)
}

// Set replaces all values associated with key by a single value. The key
// keeps its original insertion position if it already exists.
func (v *Values) Set(key, value string) {
	if v.m == nil {
		v.m = make(map[string][]string)
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = []string{value}
}

// Get returns the first value associated with key, or "" if absent.
func (v *Values) Get(key string) string {
	if v == nil || len(v.m[key]) == 0 {
		return ""
	}
	return v.m[key][0]
}

// Has reports whether key is present.
func (v *Values) Has(key string) bool {
	if v == nil {
		return false
	}
	_, ok := v.m[key]
	return ok
}

// Values returns all values associated with key in insertion order.
func (v *Values) Values(key string) []string {
	if v == nil {
		return nil
	}
	return v.m[key]
}

// Keys returns the keys in insertion order.
func (v *Values) Keys() []string {
	if v == nil {
		return nil
	}
	return v.keys
}

// Len returns the number of distinct keys.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

// Clone returns a deep copy of v.
func (v *Values) Clone() *Values {
	c := NewValues()
	if v == nil {
		return c
	}
	for _, k := range v.keys {
		for _, val := range v.m[k] {
			c.Add(k, val)
		}
	}
	return c
}

// EncodeQuery serializes the values as a URI query component per RFC 3986:
// reserved characters are percent-encoded and spaces become %20, never "+".
func (v *Values) EncodeQuery() string {
	return v.encode(false)
}

// EncodeForm serializes the values as an application/x-www-form-urlencoded
// body, where spaces are encoded as "+".
func (v *Values) EncodeForm() string {
	return v.encode(true)
}

func (v *Values) encode(form bool) string {
	if v == nil || len(v.keys) == 0 {
		return ""
	}
	var b strings.Builder
	first := true
	for _, k := range v.keys {
		for _, val := range v.m[k] {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(escape(k, form))
			b.WriteByte('=')
			b.WriteString(escape(val, form))
		}
	}
	return b.String()
}

// ParseQuery parses a raw URI query string. "+" is a literal plus sign in
// this context; only percent escapes are decoded.
func ParseQuery(query string) (*Values, error) {
	return parse(query, false)
}

// ParseForm parses an application/x-www-form-urlencoded body, where "+"
// decodes to a space.
func ParseForm(body string) (*Values, error) {
	return parse(body, true)
}

func parse(s string, form bool) (*Values, error) {
	v := NewValues()
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := unescape(key, form)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed parameter name %q", key), Err: err}
		}
		val, err := unescape(value, form)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed value for parameter %q", k), Err: err}
		}
		v.Add(k, val)
	}
	return v, nil
}

// escape percent-encodes everything outside the RFC 3986 unreserved set.
// In form mode a space becomes "+".
func escape(s string, form bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case c == ' ' && form:
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		}
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func unescape(s string, form bool) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%':
			if i+2 >= len(s) {
				return "", fmt.Errorf("truncated percent escape at offset %d", i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("invalid percent escape %q", s[i:i+3])
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		case '+':
			if form {
				b.WriteByte(' ')
			} else {
				b.WriteByte('+')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Map returns the parameters as a plain map, first value per key. Intended
// for callers that do not care about repeated keys or ordering.
func (v *Values) Map() map[string]string {
	if v == nil {
		return nil
	}
	m := make(map[string]string, len(v.keys))
	for _, k := range v.keys {
		m[k] = v.m[k][0]
	}
	return m
}

// orderedPair is the JSON shape of a single key/value entry.
type orderedPair [2]string

// MarshalJSON serializes the values as an ordered array of [key, value]
// pairs so persisted state survives a round trip with order intact.
func (v *Values) MarshalJSON() ([]byte, error) {
	pairs := make([]orderedPair, 0, len(v.keys))
	for _, k := range v.keys {
		for _, val := range v.m[k] {
			pairs = append(pairs, orderedPair{k, val})
		}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON restores values from the ordered pair array form.
func (v *Values) UnmarshalJSON(data []byte) error {
	var pairs []orderedPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	v.keys = nil
	v.m = make(map[string][]string)
	for _, p := range pairs {
		v.Add(p[0], p[1])
	}
	return nil
}
