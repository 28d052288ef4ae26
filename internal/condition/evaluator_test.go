package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBool_SimpleFieldAccess(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.EvaluateBool(`output.approved == true`, Vars{
		Output: map[string]interface{}{"approved": true},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateBool_JSONPathShorthand(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.EvaluateBool(`$.score > 0.8`, Vars{
		Output: map[string]interface{}{"score": 0.95},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateBool_InputAndNodesVars(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.EvaluateBool(`input.region == "us" && nodes.fetch.status == "success"`, Vars{
		Input: map[string]interface{}{"region": "us"},
		Nodes: map[string]interface{}{"fetch": map[string]interface{}{"status": "success"}},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateBool_NonBooleanResultErrors(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.EvaluateBool(`output.score`, Vars{
		Output: map[string]interface{}{"score": 0.5},
	})
	assert.Error(t, err)
}

func TestEvaluateBool_CompileErrorOnUnknownIdentifier(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.EvaluateBool(`secrets.apiKey == "x"`, Vars{})
	assert.Error(t, err)
}

func TestEvaluate_ProgramCache(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	expr := `output.n > 1`
	_, err = e.EvaluateBool(expr, Vars{Output: map[string]interface{}{"n": 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.EvaluateBool(expr, Vars{Output: map[string]interface{}{"n": 5}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize(), "second call with same expression should hit the cache")

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluateBool_LenBuiltin(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.EvaluateBool(`size(output.items) == 3`, Vars{
		Output: map[string]interface{}{"items": []interface{}{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}
