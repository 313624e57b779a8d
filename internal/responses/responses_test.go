package responses

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Responses {
	t.Helper()
	var r Responses
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestLookupNestedAndFlat(t *testing.T) {
	r := decode(t, `{"step1":{"business_name":"Acme","logo_upload":[{"url":"logo.png"}]},"flat.key":"x"}`)

	v, ok := r.Lookup("step1.business_name")
	require.True(t, ok)
	assert.Equal(t, "Acme", v)

	v, ok = r.Lookup("flat.key")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = r.Lookup("step1.business_name.deeper")
	assert.False(t, ok)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestAccessorsAreTotal(t *testing.T) {
	var nilMap Responses
	assert.Equal(t, "fallback", String(nilMap, "step1.a", "fallback"))
	assert.Equal(t, 7, Int(nilMap, "x", 7))
	assert.False(t, HasText(nilMap, "x"))
	assert.False(t, HasFiles(nilMap, "x"))
	assert.False(t, ArrayIncludes(nilMap, "x", "y"))
	assert.Nil(t, Map(nilMap, "x"))
	assert.Equal(t, 0, CountAnswered(nilMap))

	r := decode(t, `{"step1":"not-an-object","n":"12","f":3.0,"b":"yes","list":"a, b ,c"}`)
	assert.Equal(t, "", String(r, "step1.name", ""))
	assert.Equal(t, 12, Int(r, "n", 0))
	assert.Equal(t, 3, Int(r, "f", 0))
	assert.Equal(t, 0, Int(r, "step1", 0))
	assert.True(t, Bool(r, "b", false))
	assert.Equal(t, []string{"a", "b", "c"}, Strings(r, "list"))
	assert.Equal(t, "dflt", Get(r, "f", "dflt"))
	assert.InDelta(t, 3.0, Get(r, "f", 0.0), 0.0001)
}

func TestHasTextAndFiles(t *testing.T) {
	r := decode(t, `{
		"step1": {
			"logo_upload": [{"url":"logo.png"}],
			"empty_upload": [],
			"blank_upload": [{"url":""}],
			"plain_upload": ["brand.pdf"],
			"blank": "   ",
			"tags": ["seo", "ads"]
		}
	}`)
	assert.True(t, HasFiles(r, "step1.logo_upload"))
	assert.True(t, HasFiles(r, "step1.plain_upload"))
	assert.False(t, HasFiles(r, "step1.empty_upload"))
	assert.False(t, HasFiles(r, "step1.blank_upload"))
	assert.False(t, HasText(r, "step1.blank"))
	assert.True(t, HasText(r, "step1.tags"))
	assert.Equal(t, []string{"logo.png"}, FileNames(r, "step1.logo_upload"))
}

func TestArrayIncludesIgnoresCase(t *testing.T) {
	r := decode(t, `{"step2":{"features":["Ecommerce","Blog"]}}`)
	assert.True(t, ArrayIncludes(r, "step2.features", "ecommerce"))
	assert.False(t, ArrayIncludes(r, "step2.features", "booking"))
}

func TestWalkIsSortedAndSkipsEmpty(t *testing.T) {
	r := decode(t, `{"b":{"z":"1","a":""},"a":{"launch_deadline":"2025-01-01"},"c":[]}`)
	var paths []string
	Walk(r, func(l Leaf) bool {
		paths = append(paths, l.Path)
		return true
	})
	assert.Equal(t, []string{"a.launch_deadline", "b.z"}, paths)

	leaf, ok := FindKey(r, func(k string) bool { return k == "launch_deadline" })
	require.True(t, ok)
	assert.Equal(t, "2025-01-01", leaf.Value)
}
