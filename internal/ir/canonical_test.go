package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(MarshalCanonical(tt.input)))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra": IRInt(1),
		"alpha": IRInt(2),
		"beta":  IRInt(3),
	}
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(MarshalCanonical(obj)))
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(MarshalCanonical(obj)))
}

func TestMarshalCanonicalInsertionOrderIndependent(t *testing.T) {
	first := IRObject{}
	first["a"] = IRInt(1)
	first["b"] = IRInt(2)
	first["c"] = IRArray{IRString("x"), IRString("y")}

	second := IRObject{}
	second["c"] = IRArray{IRString("x"), IRString("y")}
	second["b"] = IRInt(2)
	second["a"] = IRInt(1)

	assert.Equal(t, MarshalCanonical(first), MarshalCanonical(second))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes to the surrogate 0xD800 in UTF-16, which sorts before
	// U+E000. UTF-8 byte order would put it last.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}
	expected := `{"` + "\U00010000" + `":2,"` + "\uE000" + `":1}`
	assert.Equal(t, expected, string(MarshalCanonical(obj)))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result := string(MarshalCanonical(IRString("<script>a & b</script>")))
	assert.Equal(t, `"<script>a & b</script>"`, result)
	assert.NotContains(t, result, `\u003c`)
	assert.NotContains(t, result, `\u0026`)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	assert.Equal(t, MarshalCanonical(IRString(composed)), MarshalCanonical(IRString(decomposed)))
	assert.Equal(t,
		MarshalCanonical(IRObject{composed: IRInt(1)}),
		MarshalCanonical(IRObject{decomposed: IRInt(1)}),
	)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	t.Run("literal separators are not escaped", func(t *testing.T) {
		result := string(MarshalCanonical(IRString("a\u2028b\u2029c")))
		assert.Equal(t, "\"a\u2028b\u2029c\"", result)
	})

	t.Run("escaped backslash before u2028 text is preserved", func(t *testing.T) {
		result := string(MarshalCanonical(IRString(`\u2028`)))
		assert.Equal(t, `"\\u2028"`, result)
	})
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result := string(MarshalCanonical(IRString("tab\there\nquote\"")))
	assert.Equal(t, `"tab\there\nquote\""`, result)
}
