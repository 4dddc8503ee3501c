// Package rules builds the CDN transformation suffix from a rule set.
//
// A suffix has the shape
//
//	!/{scale}/{size}/{key}/{value}...
//
// where the scale/size pair is a fixed-position prefix and the remaining pairs
// are sorted by key, so equal rule sets always produce byte-identical
// suffixes.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/geometry"
)

const (
	KeyScale       = "scale"
	KeySize        = "size"
	KeyFormat      = "format"
	KeyQuality     = "quality"
	KeyCompress    = "compress"
	KeyProgressive = "progressive"
	KeyLossless    = "lossless"
)

var ErrMalformedRuleString = errors.New("malformed rule string")

// Set maps rule names to string, number or boolean values. A nil value marks
// a rule as cleared.
type Set map[string]any

// formatRules lists, for each format-bound rule, the output formats it is
// valid for.
var formatRules = map[string][]string{
	KeyCompress:    {"jpg", "jpeg", "png"},
	KeyFormat:      {"jpg", "jpeg", "png", "webp"},
	KeyProgressive: {"jpg", "jpeg"},
	KeyQuality:     {"jpg", "jpeg"},
	KeyLossless:    {"webp"},
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Format returns the rule set's output format, or "" when absent.
func (s Set) Format() string {
	v, ok := s[KeyFormat]
	if !ok {
		return ""
	}
	text, _ := FormatValue(v)
	return strings.ToLower(text)
}

// Merge layers extra under resolved: on any key present in both, the
// resolved value wins.
func Merge(resolved, extra Set) Set {
	out := make(Set, len(resolved)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range resolved {
		out[k] = v
	}
	return out
}

// FilterByFormat clears every format-bound rule that does not apply to the
// set's format.
func FilterByFormat(s Set) Set {
	out := s.Clone()
	format := out.Format()
	for key, formats := range formatRules {
		if !contains(formats, format) {
			out[key] = nil
		}
	}
	return out
}

// FilterEmpty drops nil and empty-string values.
func FilterEmpty(s Set) Set {
	out := make(Set, len(s))
	for k, v := range s {
		if isEmpty(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// Optimize applies format-conditional defaults. Only the first matching
// branch fires: a JPEG gets progressive, otherwise a PNG gets compress.
func Optimize(s Set) Set {
	out := s.Clone()
	format := out.Format()
	switch {
	case !isSet(out, KeyProgressive) && isJPEG(format):
		out[KeyProgressive] = true
	case !isSet(out, KeyCompress) && format == "png":
		out[KeyCompress] = true
	}
	return out
}

// Canonicalize runs filter-by-format, filter-empty and optimize in order.
func Canonicalize(s Set) Set {
	return Optimize(FilterEmpty(FilterByFormat(s)))
}

// Stringify serializes s into the CDN suffix grammar. It returns "" when no
// rule survives canonicalization.
func Stringify(s Set) string {
	canonical := Canonicalize(s)
	if len(canonical) == 0 {
		return ""
	}

	var b strings.Builder
	if size, ok := FormatValue(canonical[KeySize]); ok {
		scale, ok := FormatValue(canonical[KeyScale])
		if !ok {
			scale = geometry.DefaultMode
		}
		b.WriteString("/")
		b.WriteString(scale)
		b.WriteString("/")
		b.WriteString(size)
	}

	keys := make([]string, 0, len(canonical))
	for k := range canonical {
		if k == KeyScale || k == KeySize {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value, _ := FormatValue(canonical[k])
		b.WriteString("/")
		b.WriteString(k)
		b.WriteString("/")
		b.WriteString(value)
	}

	if b.Len() == 0 {
		return ""
	}
	return "!" + b.String()
}

// ParseExtra parses a slash-delimited "key/value/key/value" string. A single
// leading slash is ignored; an empty string yields an empty set.
func ParseExtra(raw string) (Set, error) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return Set{}, nil
	}

	tokens := strings.Split(raw, "/")
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has %d tokens", ErrMalformedRuleString, raw, len(tokens))
	}

	out := make(Set, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		out[tokens[i]] = tokens[i+1]
	}
	return out, nil
}

// Decoded is a suffix split back into its parts.
type Decoded struct {
	Scale string            `json:"scale,omitempty"`
	Size  string            `json:"size,omitempty"`
	Rules map[string]string `json:"rules"`
}

// ParseSuffix reverses Stringify. A leading pair whose key is a known scale
// mode is taken as the scale/size prefix. The CDN reads "/fw/1" the same way
// whether it was written as a prefix or as a rule named fw, so a set without
// a size whose first sorted rule is a scale-mode name decodes with that rule
// in Scale and Size rather than in Rules.
func ParseSuffix(suffix string) (Decoded, error) {
	out := Decoded{Rules: map[string]string{}}
	if suffix == "" {
		return out, nil
	}
	if !strings.HasPrefix(suffix, "!/") {
		return Decoded{}, fmt.Errorf("%w: suffix %q must start with \"!/\"", ErrMalformedRuleString, suffix)
	}

	tokens := strings.Split(suffix[2:], "/")
	if len(tokens)%2 != 0 {
		return Decoded{}, fmt.Errorf("%w: suffix %q has %d tokens", ErrMalformedRuleString, suffix, len(tokens))
	}

	i := 0
	if geometry.IsMode(tokens[0]) {
		out.Scale, out.Size = tokens[0], tokens[1]
		i = 2
	}
	for ; i < len(tokens); i += 2 {
		out.Rules[tokens[i]] = tokens[i+1]
	}
	return out, nil
}

// FormatValue renders a rule value as it appears in a suffix. The boolean
// result is false for nil and empty values.
func FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	default:
		s := fmt.Sprint(x)
		return s, s != ""
	}
}

// Truthy interprets a rule value as a flag.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return false
	}
}

func isEmpty(v any) bool {
	_, ok := FormatValue(v)
	return !ok
}

func isSet(s Set, key string) bool {
	v, ok := s[key]
	return ok && !isEmpty(v)
}

func isJPEG(format string) bool {
	return format == "jpg" || format == "jpeg"
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
