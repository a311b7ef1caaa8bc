package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// The wire format is plain JSON extended with a closed set of tagged
// objects for scalar types JSON cannot carry natively. A tagged object is
// {"__kind__": <tag>, "value": <string form>} and must survive an
// encode/decode cycle without loss.
const kindKey = "__kind__"

const (
	kindDateTime = "datetime"
	kindDate     = "date"
	kindTime     = "time"
	kindDecimal  = "decimal"
	kindBytes    = "bytes"
)

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// TimeOfDay is a wall-clock time without a date component.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func (t TimeOfDay) String() string {
	if t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanosecond)
}

// Marshal encodes v as wire JSON, replacing supported scalar types with
// their tagged-object form.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(encode(v))
}

// Unmarshal decodes wire JSON, inverse-mapping tagged objects back to
// their scalar types. Plain JSON values come back as the usual
// map[string]any / []any / float64 / string / bool / nil shapes.
func Unmarshal(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decode(raw)
}

func encode(v any) any {
	switch val := v.(type) {
	case time.Time:
		return tagged(kindDateTime, val.UTC().Format(time.RFC3339Nano))
	case Date:
		return tagged(kindDate, val.String())
	case TimeOfDay:
		return tagged(kindTime, val.String())
	case decimal.Decimal:
		return tagged(kindDecimal, val.String())
	case []byte:
		return tagged(kindBytes, base64.StdEncoding.EncodeToString(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = encode(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encode(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encode(item)
		}
		return out
	default:
		return v
	}
}

func decode(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if kind, ok := val[kindKey].(string); ok {
			return decodeTagged(kind, val)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			dec, err := decode(item)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			dec, err := decode(item)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	default:
		return v, nil
	}
}

func tagged(kind, value string) map[string]any {
	return map[string]any{kindKey: kind, "value": value}
}

func decodeTagged(kind string, obj map[string]any) (any, error) {
	value, _ := obj["value"].(string)
	switch kind {
	case kindDateTime:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("wire: bad datetime %q: %w", value, err)
		}
		return t.UTC(), nil
	case kindDate:
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return nil, fmt.Errorf("wire: bad date %q: %w", value, err)
		}
		return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	case kindTime:
		layout := "15:04:05"
		if len(value) > len(layout) {
			layout = "15:04:05.999999999"
		}
		t, err := time.Parse(layout, value)
		if err != nil {
			return nil, fmt.Errorf("wire: bad time %q: %w", value, err)
		}
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}, nil
	case kindDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("wire: bad decimal %q: %w", value, err)
		}
		return d, nil
	case kindBytes:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("wire: bad bytes payload: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("wire: unknown kind %q", kind)
	}
}
