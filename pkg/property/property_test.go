package property

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	cases := []Property{
		New("city", KindString, "the city name"),
		New("count", KindInt, "how many"),
		New("score", KindFloat, "confidence"),
		New("ok", KindBool, "flag"),
	}
	for _, p := range cases {
		schema := p.ToJSONSchema()
		back, err := FromJSONSchema(p.Name, schema)
		require.NoError(t, err)
		assert.Equal(t, p.Kind, back.Kind)
	}
}

func TestListAndDictRoundTrip(t *testing.T) {
	list := List("tags", New("", KindString, ""), "tag list")
	schema := list.ToJSONSchema()
	back, err := FromJSONSchema("tags", schema)
	require.NoError(t, err)
	assert.Equal(t, KindList, back.Kind)
	require.NotNil(t, back.ItemType)
	assert.Equal(t, KindString, back.ItemType.Kind)

	dict := Dict("counts", New("", KindInt, ""), "counts by key")
	schema = dict.ToJSONSchema()
	back, err = FromJSONSchema("counts", schema)
	require.NoError(t, err)
	assert.Equal(t, KindDict, back.Kind)
	require.NotNil(t, back.ValueType)
	assert.Equal(t, KindInt, back.ValueType.Kind)
}

func TestUnionWithNullCollapsesToOptional(t *testing.T) {
	schema := map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "null"},
		},
		"default": nil,
	}
	p, err := FromJSONSchema("nickname", schema)
	require.NoError(t, err)
	assert.Equal(t, KindString, p.Kind)
	assert.True(t, p.HasDefault())
}

func TestIsValueOfExpectedTypeAndCast(t *testing.T) {
	intProp := New("n", KindInt, "")
	assert.True(t, intProp.IsValueOfExpectedType(int64(5)))
	assert.False(t, intProp.IsValueOfExpectedType("5"))

	cast, err := intProp.CastValueInto(float64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), cast)

	_, err = intProp.CastValueInto(float64(5.5))
	assert.Error(t, err)
}

func TestObjectSchema(t *testing.T) {
	obj := Object("address", map[string]Property{
		"city": New("city", KindString, ""),
		"zip":  New("zip", KindString, ""),
	}, []string{"city"}, "an address")

	schema := obj.ToJSONSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	back, err := FromJSONSchema("address", schema)
	require.NoError(t, err)
	assert.Equal(t, KindObject, back.Kind)
	assert.Contains(t, back.Required, "city")
}

func TestDefaultSentinel(t *testing.T) {
	p := New("x", KindString, "")
	assert.False(t, p.HasDefault())
	p = p.WithDefault("hello")
	assert.True(t, p.HasDefault())
	assert.Equal(t, "hello", p.Default)
}
