package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  ID
	}{
		{"string", "abc", StringID("abc")},
		{"int", 5, IntID(5)},
		{"int64", int64(-3), IntID(-3)},
		{"json number", json.Number("42"), IntID(42)},
		{"integral float", float64(7), IntID(7)},
		{"ir string", IRString("x"), StringID("x")},
		{"ir int", IRInt(9), IntID(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDRejects(t *testing.T) {
	_, err := ParseID(1.5)
	require.Error(t, err)

	_, err = ParseID(json.Number("1.5"))
	require.Error(t, err)

	_, err = ParseID([]any{1})
	require.Error(t, err)
}

func TestIDTypesAreDistinct(t *testing.T) {
	assert.NotEqual(t, IntID(5), StringID("5"))
	assert.Equal(t, "5", IntID(5).String())
	assert.Equal(t, "5", StringID("5").String())

	m := map[ID]string{IntID(5): "int", StringID("5"): "string"}
	assert.Len(t, m, 2)
}

func TestIDJSON(t *testing.T) {
	data, err := json.Marshal([]ID{IntID(10), StringID("a")})
	require.NoError(t, err)
	assert.Equal(t, `[10,"a"]`, string(data))

	var ids []ID
	require.NoError(t, json.Unmarshal(data, &ids))
	assert.Equal(t, []ID{IntID(10), StringID("a")}, ids)
}

func TestIDAsJSONMapKey(t *testing.T) {
	data, err := json.Marshal(map[ID]int{IntID(10): 1})
	require.NoError(t, err)
	assert.Equal(t, `{"10":1}`, string(data))
}

func TestIDYAML(t *testing.T) {
	var doc struct {
		A ID `yaml:"a"`
		B ID `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 3\nb: slug\n"), &doc))
	assert.Equal(t, IntID(3), doc.A)
	assert.Equal(t, StringID("slug"), doc.B)
}

func TestRecordID(t *testing.T) {
	records, err := DecodeRecords([]byte(`[{"id":10,"body":"x"},{"uuid":"a-b"}]`))
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, err := records[0].ID(DefaultIDField)
	require.NoError(t, err)
	assert.Equal(t, IntID(10), id)

	_, err = records[1].ID(DefaultIDField)
	require.Error(t, err)

	id, err = records[1].ID("uuid")
	require.NoError(t, err)
	assert.Equal(t, StringID("a-b"), id)
}
