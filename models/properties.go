package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/btree"
)

// Properties is an ordered bag of property values copied from a graph entity.
// Keys are kept sorted so that the serialized form of an entity is stable
// across requests, regardless of the order the database returned them in.
//
// Values are normalized when they enter the bag: integers widen to int64,
// floats to float64, temporal and spatial driver values become their string
// form, non-finite floats become "NaN", "+Inf" or "-Inf", and lists and maps
// are normalized element by element. Anything else
// is rendered with fmt.Sprint so the bag always holds JSON-encodable data.
type Properties struct {
	tree btree.Map[string, any]
}

// NewProperties builds a normalized property bag from a raw property map.
// A nil map yields an empty bag.
func NewProperties(src map[string]any) *Properties {
	p := &Properties{}
	for key, value := range src {
		p.Set(key, value)
	}
	return p
}

// Set stores the normalized form of value under key, replacing any previous value.
func (p *Properties) Set(key string, value any) {
	p.tree.Set(key, normalizeValue(value))
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return p.tree.Get(key)
}

// Has reports whether key is present, whatever its value.
func (p *Properties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Len returns the number of properties in the bag.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return p.tree.Len()
}

// Keys returns the property names in ascending order.
func (p *Properties) Keys() []string {
	if p == nil {
		return []string{}
	}
	return p.tree.Keys()
}

// Each calls fn for every property in key order until fn returns false.
func (p *Properties) Each(fn func(key string, value any) bool) {
	if p == nil {
		return
	}
	p.tree.Scan(fn)
}

// Map returns a plain copy of the bag.
func (p *Properties) Map() map[string]any {
	out := make(map[string]any, p.Len())
	p.Each(func(key string, value any) bool {
		out[key] = value
		return true
	})
	return out
}

// MarshalJSON encodes the bag as a JSON object with sorted keys.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	p.Each(func(key string, value any) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		err = writeMember(&buf, key, value)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeMember appends `"key":value` to buf.
func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("property %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// normalizeValue converts a driver value into a JSON-friendly scalar, list or map.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int64:
		return v
	case float64:
		return normalizeFloat(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return normalizeFloat(float64(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return v.String()
	case []byte:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case time.Duration:
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeValue(item)
		}
		return out
	case fmt.Stringer:
		// Driver temporal and spatial types (dbtype.Date, dbtype.Point2D, ...)
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// normalizeFloat keeps finite floats and renders NaN and the infinities as
// "NaN", "+Inf" and "-Inf", which JSON numbers cannot express.
func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}
