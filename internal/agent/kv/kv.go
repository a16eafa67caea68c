// Package kv implements the agent's key/value primitives: an
// insertion-ordered list used for provides/depends sets, and a keystore
// of named string values. The keystore round-trips through JSON; the
// list round-trips through the ASCII unit/record separator wire format
// used to persist provides sets on disk, byte-exact with existing
// on-device state. It also carries small string-search utilities:
// LastIndexSubstring, HasPrefix, HasSuffix.
package kv

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Separator bytes used by the on-disk list encoding. These values must
// never change: existing devices persist provides/depends sets in this
// exact format.
const (
	unitSeparator   = "\x1f"
	recordSeparator = "\x1e"
)

// Pair is a single owned (key, value) entry.
type Pair struct {
	Key   string
	Value string
}

// List is an insertion-ordered sequence of (key, value) pairs. Duplicate
// keys are allowed; callers that need last-write-wins semantics use
// Keystore instead.
type List struct {
	pairs []Pair
}

// NewList returns an empty List.
func NewList() *List {
	return &List{}
}

// Add appends a (key, value) pair, preserving insertion order even if key
// already appears earlier in the list.
func (l *List) Add(key, value string) {
	l.pairs = append(l.pairs, Pair{Key: key, Value: value})
}

// Len returns the number of entries, including duplicates.
func (l *List) Len() int {
	return len(l.pairs)
}

// Pairs returns the entries in insertion order. The returned slice must not
// be mutated by the caller.
func (l *List) Pairs() []Pair {
	return l.pairs
}

// Contains reports whether key is present with value, considering only the
// last occurrence of key (last-write-wins, matching the server-facing
// dedup rule).
func (l *List) Contains(key, value string) bool {
	dedup := l.dedup()
	v, ok := dedup[key]
	return ok && v == value
}

// dedup collapses the list to last-write-wins semantics.
func (l *List) dedup() map[string]string {
	out := make(map[string]string, len(l.pairs))
	for _, p := range l.pairs {
		out[p.Key] = p.Value
	}
	return out
}

// Encode serializes the list using 0x1F between key and value and 0x1E
// between entries, matching the on-device format.
func (l *List) Encode() string {
	var b strings.Builder
	for i, p := range l.pairs {
		if i > 0 {
			b.WriteString(recordSeparator)
		}
		b.WriteString(p.Key)
		b.WriteString(unitSeparator)
		b.WriteString(p.Value)
	}
	return b.String()
}

// Decode parses the unit/record-separator wire format produced by Encode.
// An empty string decodes to an empty list. Any record lacking a unit
// separator is malformed.
func Decode(s string) (*List, error) {
	l := NewList()
	if s == "" {
		return l, nil
	}
	for _, record := range strings.Split(s, recordSeparator) {
		idx := strings.Index(record, unitSeparator)
		if idx < 0 {
			return nil, fmt.Errorf("malformed key/value record: %q", record)
		}
		l.Add(record[:idx], record[idx+1:])
	}
	return l, nil
}

// LastIndexSubstring returns the byte index of the last (right-most)
// occurrence of needle in haystack, or -1 if needle does not occur. An
// empty needle matches at len(haystack), mirroring strrstr's behavior of
// returning a pointer to the string's trailing NUL.
func LastIndexSubstring(haystack, needle string) int {
	if needle == "" {
		return len(haystack)
	}
	last := -1
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return last
		}
		last = from + idx
		from = last + 1
	}
}

// HasPrefix reports whether s begins with prefix.
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// HasSuffix reports whether s ends with suffix.
func HasSuffix(s, suffix string) bool {
	return strings.HasSuffix(s, suffix)
}

// Keystore is an ordered array of owned (name, value) string pairs with
// last-write-wins semantics on Set, JSON object round-trip, and a stable
// iteration order (insertion order of the first Set for a given name).
type Keystore struct {
	order []string
	vals  map[string]string
}

// NewKeystore returns an empty Keystore.
func NewKeystore() *Keystore {
	return &Keystore{vals: make(map[string]string)}
}

// Copy returns a deep copy of the keystore.
func (k *Keystore) Copy() *Keystore {
	c := NewKeystore()
	c.order = append([]string(nil), k.order...)
	for key, v := range k.vals {
		c.vals[key] = v
	}
	return c
}

// Len returns the number of distinct names stored.
func (k *Keystore) Len() int {
	return len(k.order)
}

// Get returns the value for name and whether it was present.
func (k *Keystore) Get(name string) (string, bool) {
	v, ok := k.vals[name]
	return v, ok
}

// Set stores value under name, appending name to the iteration order the
// first time it is set.
func (k *Keystore) Set(name, value string) {
	if _, ok := k.vals[name]; !ok {
		k.order = append(k.order, name)
	}
	k.vals[name] = value
}

// Pairs returns the stored entries in iteration order.
func (k *Keystore) Pairs() []Pair {
	out := make([]Pair, 0, len(k.order))
	for _, name := range k.order {
		out = append(out, Pair{Key: name, Value: k.vals[name]})
	}
	return out
}

// MarshalJSON encodes the keystore as a JSON object.
func (k *Keystore) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(k.order))
	for _, name := range k.order {
		m[name] = k.vals[name]
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a JSON object into the keystore. Go's map
// iteration order is randomized, so the resulting iteration order is not
// guaranteed to match any original encoding order — callers that need a
// byte-stable round trip should compare contents, not order.
func (k *Keystore) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	k.order = nil
	k.vals = make(map[string]string, len(m))
	for name, value := range m {
		k.Set(name, value)
	}
	return nil
}
