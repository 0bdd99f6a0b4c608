package patterns

import (
	"sort"
	"strings"
)

// signatureKeys is the fixed, ordered set of context keys considered salient
// for grouping. Anything else in an activity's context is ignored by the
// signature.
var signatureKeys = []string{"project_context", "goal_type", "tool_used", "file_path"}

// Signature is a stable grouping key built from the salient context entries
// of an activity. The wire form is sorted key=value pairs joined by "|", and
// it round-trips through ParseSignature by plain splitting; no dynamic
// evaluation is involved.
type Signature struct {
	pairs []sigPair
}

type sigPair struct {
	key   string
	value string
}

// NewSignature extracts the salient entries from context.
func NewSignature(context map[string]string) Signature {
	var pairs []sigPair
	for _, key := range signatureKeys {
		if v, ok := context[key]; ok && v != "" {
			pairs = append(pairs, sigPair{key: key, value: v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return Signature{pairs: pairs}
}

// ParseSignature reconstructs a Signature from its wire form.
func ParseSignature(s string) Signature {
	if s == "" {
		return Signature{}
	}
	var pairs []sigPair
	for _, part := range strings.Split(s, "|") {
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		pairs = append(pairs, sigPair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return Signature{pairs: pairs}
}

// String returns the wire form: sorted key=value pairs joined by "|".
func (s Signature) String() string {
	parts := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, "|")
}

// Context returns the signature as a map.
func (s Signature) Context() map[string]string {
	out := make(map[string]string, len(s.pairs))
	for _, p := range s.pairs {
		out[p.key] = p.value
	}
	return out
}

// Empty reports whether no salient context was present.
func (s Signature) Empty() bool { return len(s.pairs) == 0 }
