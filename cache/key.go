package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// KeyPrefix is the namespace shared by every cache key, so backends that
// store unrelated data alongside the cache can invalidate by prefix.
const KeyPrefix = "report"

// Params is a canonical parameter set: order-independent and
// value-normalized, so two logically-equal requests derive the same key.
type Params map[string]string

// NewParams normalizes a raw parameter mapping. Nil and empty values are
// dropped, which makes an absent filter and an explicit empty one
// equivalent.
func NewParams(raw map[string]any) Params {
	p := make(Params, len(raw))
	for k, v := range raw {
		if s, ok := NormalizeValue(v); ok {
			p[k] = s
		}
	}
	return p
}

// Set normalizes and stores a single parameter, returning the receiver
// for chaining. Empty values are ignored.
func (p Params) Set(key string, value any) Params {
	if s, ok := NormalizeValue(value); ok {
		p[key] = s
	}
	return p
}

// Canonical renders the parameter set as sorted k=v pairs. This string,
// not the map, is what keys are derived from.
func (p Params) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}

// Key derives the lookup key for a report type and this parameter set:
// report:<type>:<xxhash of canonical form>. The type segment stays in
// clear text so invalidation can match on it.
func Key(reportType string, p Params) string {
	sum := xxhash.Sum64String(p.Canonical())
	return KeyPrefix + ":" + reportType + ":" + strconv.FormatUint(sum, 16)
}

// TypePrefix returns the key prefix shared by all entries of one report
// type, or the global prefix when reportType is empty.
func TypePrefix(reportType string) string {
	if reportType == "" {
		return KeyPrefix + ":"
	}
	return KeyPrefix + ":" + reportType + ":"
}

// dateLayouts are the formats accepted for date-valued parameters, most
// specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeValue renders a parameter value in its canonical string form.
// Booleans become "true"/"false" regardless of whether they arrive typed
// or spelled out, typed numbers use the shortest decimal representation,
// and times (typed or in any accepted layout) become RFC3339 UTC. Other
// strings pass through verbatim: numeric-looking identifiers such as
// "01" must never collapse onto another id's key. The second return is
// false when the value carries no information and should be omitted
// from the key.
func NormalizeValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return "", false
		}
		if t, ok := parseDate(s); ok {
			return t.UTC().Format(time.RFC3339), true
		}
		switch strings.ToLower(s) {
		case "true":
			return "true", true
		case "false":
			return "false", true
		}
		return s, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		return val.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return NormalizeValue(val.String())
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
