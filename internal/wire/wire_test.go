package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_TaggedScalars(t *testing.T) {
	dt := time.Date(2014, 5, 10, 16, 47, 26, 0, time.UTC)
	num := decimal.RequireFromString("10.12345")

	data, err := Marshal(map[string]any{"dt": dt, "num": num})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	dtObj, ok := raw["dt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "datetime", dtObj["__kind__"])
	assert.Equal(t, "2014-05-10T16:47:26Z", dtObj["value"])

	numObj, ok := raw["num"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "decimal", numObj["__kind__"])
	assert.Equal(t, "10.12345", numObj["value"])
}

func TestRoundTrip_DateTimeAndDecimal(t *testing.T) {
	original := map[string]any{
		"dt":  time.Date(2014, 5, 10, 16, 47, 26, 0, time.UTC),
		"num": decimal.RequireFromString("10.12345"),
	}

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	got, ok := decoded.(map[string]any)
	require.True(t, ok)

	gotDT, ok := got["dt"].(time.Time)
	require.True(t, ok)
	assert.True(t, gotDT.Equal(original["dt"].(time.Time)))

	gotNum, ok := got["num"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, gotNum.Equal(original["num"].(decimal.Decimal)))
}

func TestRoundTrip_DateTimeOfDayAndBytes(t *testing.T) {
	original := map[string]any{
		"d":   Date{Year: 2014, Month: time.May, Day: 10},
		"tod": TimeOfDay{Hour: 16, Minute: 47, Second: 26},
		"bin": []byte{0x00, 0x01, 0xff},
	}

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	got := decoded.(map[string]any)
	assert.Equal(t, original["d"], got["d"])
	assert.Equal(t, original["tod"], got["tod"])
	assert.Equal(t, original["bin"], got["bin"])
}

func TestRoundTrip_NestedStructures(t *testing.T) {
	original := []any{
		map[string]any{
			"name":    "invoice",
			"total":   decimal.RequireFromString("199.99"),
			"created": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			"lines": []any{
				map[string]any{"qty": float64(2), "price": decimal.RequireFromString("99.995")},
			},
		},
	}

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	items := decoded.([]any)
	require.Len(t, items, 1)
	rec := items[0].(map[string]any)
	assert.Equal(t, "invoice", rec["name"])
	assert.True(t, rec["total"].(decimal.Decimal).Equal(decimal.RequireFromString("199.99")))

	lines := rec["lines"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	assert.Equal(t, float64(2), line["qty"])
	assert.True(t, line["price"].(decimal.Decimal).Equal(decimal.RequireFromString("99.995")))
}

func TestUnmarshal_RejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"v": {"__kind__": "complex", "value": "1+2i"}}`))
	assert.Error(t, err)
}

func TestUnmarshal_RejectsMalformedTaggedValues(t *testing.T) {
	cases := map[string]string{
		"bad datetime": `{"__kind__": "datetime", "value": "not-a-date"}`,
		"bad decimal":  `{"__kind__": "decimal", "value": "ten"}`,
		"bad bytes":    `{"__kind__": "bytes", "value": "%%%"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestMarshal_PlainValuesPassThrough(t *testing.T) {
	data, err := Marshal(map[string]any{"n": 42, "s": "x", "b": true, "z": nil})
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	got := decoded.(map[string]any)
	assert.Equal(t, float64(42), got["n"])
	assert.Equal(t, "x", got["s"])
	assert.Equal(t, true, got["b"])
	assert.Nil(t, got["z"])
}
