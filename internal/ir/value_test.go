package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"status": "published",
		"votes":  3,
		"tags":   []any{"a", int64(2), true, nil},
		"nested": map[string]any{"ok": false},
	})
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"status": IRString("published"),
		"votes":  IRInt(3),
		"tags":   IRArray{IRString("a"), IRInt(2), IRBool(true), IRNull{}},
		"nested": IRObject{"ok": IRBool(false)},
	}, v)
}

func TestFromGoRejectsFloats(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"float64", 3.14},
		{"float32", float32(1.5)},
		{"json float", json.Number("1.5")},
		{"json exponent", json.Number("1e3")},
		{"nested", map[string]any{"x": []any{1.25}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromGo(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "float")
		})
	}
}

func TestFromGoRejectsUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"b":[1,"x"],"a":null}`))
	require.NoError(t, err)
	assert.Equal(t, IRObject{"a": IRNull{}, "b": IRArray{IRInt(1), IRString("x")}}, v)

	_, err = UnmarshalIRValue([]byte(`{"a":1.5}`))
	require.Error(t, err)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{"z": IRInt(1), "a": IRArray{IRString("x")}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"z":1}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestToGo(t *testing.T) {
	got := ToGo(IRObject{
		"n": IRInt(7),
		"l": IRArray{IRBool(true), IRNull{}},
	})
	assert.Equal(t, map[string]any{"n": int64(7), "l": []any{true, nil}}, got)
}

func TestSortedKeys(t *testing.T) {
	obj := IRObject{"b": IRInt(1), "a": IRInt(1), "ab": IRInt(1)}
	assert.Equal(t, []string{"a", "ab", "b"}, obj.SortedKeys())
}
