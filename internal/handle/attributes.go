package handle

import (
	"maps"
	"math"
	"strconv"
	"strings"
)

// RankingKey is the attribute a producer sets to declare its rank.
const RankingKey = "service.ranking"

// Attributes is the producer supplied metadata of a handle.
// Values returned from a handle are snapshots and must not be modified.
type Attributes map[string]any

// Clone returns a shallow copy. Nil stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// String returns the attribute formatted as a string, or "" when absent.
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RankOf derives a rank from the RankingKey attribute.
// Missing or unparseable values rank as 0.
func RankOf(a Attributes) int {
	v, ok := a[RankingKey]
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case int:
		return val
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case int64:
		return clampInt64(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return clampInt64(int64(val))
	case float32:
		return int(val)
	case float64:
		if val >= math.MaxInt {
			return math.MaxInt
		}
		if val <= math.MinInt {
			return math.MinInt
		}
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func clampInt64(v int64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	if v < math.MinInt {
		return math.MinInt
	}
	return int(v)
}

// Filter selects handles by their attributes.
type Filter interface {
	Matches(attrs Attributes) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(attrs Attributes) bool

// Matches calls f(attrs).
func (f FilterFunc) Matches(attrs Attributes) bool {
	return f(attrs)
}

// Match applies f to attrs; a nil filter matches everything.
func Match(f Filter, attrs Attributes) bool {
	if f == nil {
		return true
	}
	return f.Matches(attrs)
}
