package tool_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/tool"
)

var handler = &tool.Handler{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

const integratorYAML = `
name: integrator
nx: 2
nu: 1
scalars:
  - {name: r, value: 0.5}
dynamics:
  - x[1]
  - u[0]
stage_cost: x[0]^2 + x[1]^2 + r*u[0]^2
terminal_cost: x[0]^2 + x[1]^2
output:
  cse: false
`

func call(t *testing.T, name string, params map[string]interface{}) tool.ToolResponse {
	t.Helper()
	return handler.Handle(tool.ToolRequest{Tool: name, Params: params})
}

// decode round-trips a request through JSON so params have their wire types.
func decode(t *testing.T, body string) tool.ToolRequest {
	t.Helper()
	var req tool.ToolRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

// ============================================================
// Expression tools
// ============================================================

func TestSimplifyAndDiff(t *testing.T) {
	t.Parallel()
	resp := call(t, "simplify", map[string]interface{}{"expr": "x + x + 0"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "2*x", resp.String)

	resp = call(t, "diff", map[string]interface{}{"expr": "x^3", "var": "x"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "3*x^2", resp.String)

	tree := expr.ToMap(expr.MustParse("sin(x)"))
	resp = call(t, "diff", map[string]interface{}{"expr": tree, "var": "x"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "cos(x)", resp.String)
}

func TestGradient(t *testing.T) {
	t.Parallel()
	req := decode(t, `{"tool":"gradient","params":{"expr":"x[0]*x[1]","vars":["x[0]","x[1]"]}}`)
	resp := handler.Handle(req)
	require.Empty(t, resp.Error)
	assert.Equal(t, []string{"x[1]", "x[0]"}, resp.Result)
}

func TestCSE(t *testing.T) {
	t.Parallel()
	req := decode(t, `{"tool":"cse","params":{"exprs":["sin(x)*y + 1", "sin(x)*y"]}}`)
	resp := handler.Handle(req)
	require.Empty(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	temps := result["temps"].([]map[string]string)
	require.Len(t, temps, 1)
	assert.Equal(t, "tmp0", temps[0]["name"])
	assert.Equal(t, "sin(x)*y", temps[0]["value"])
	assert.Equal(t, []string{"tmp0 + 1", "tmp0"}, result["outputs"])
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	req := decode(t, `{"tool":"evaluate","params":{"expr":"sqrt(x[0]^2 + x[1]^2)","env":{"x[0]":3,"x[1]":4}}}`)
	resp := handler.Handle(req)
	require.Empty(t, resp.Error)
	assert.InDelta(t, 5, resp.Result.(float64), 1e-12)

	resp = call(t, "evaluate", map[string]interface{}{"expr": "y"})
	assert.Contains(t, resp.Error, "unbound")
}

func TestFreeSymbols(t *testing.T) {
	t.Parallel()
	resp := call(t, "free_symbols", map[string]interface{}{"expr": "b*sin(a) + c"})
	require.Empty(t, resp.Error)
	assert.Equal(t, []string{"a", "b", "c"}, resp.Result)
}

// ============================================================
// Problem tools
// ============================================================

func TestDerive(t *testing.T) {
	t.Parallel()
	resp := call(t, "derive", map[string]interface{}{"problem": integratorYAML})
	require.Empty(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, []string{"dx[0] = x[1]", "dx[1] = u[0]"}, result["f"])
	assert.Contains(t, resp.String, "hu[0] = ")
}

func TestEmit_Targets(t *testing.T) {
	t.Parallel()
	resp := call(t, "emit", map[string]interface{}{"problem": integratorYAML})
	require.Empty(t, resp.Error)
	assert.Contains(t, resp.String, "class OCP_integrator {")
	assert.Contains(t, resp.String, "double r = 0.5;")

	resp = call(t, "emit", map[string]interface{}{"problem": integratorYAML, "target": "go", "cse": true})
	require.Empty(t, resp.Error)
	assert.Contains(t, resp.String, "package integrator")

	resp = call(t, "emit", map[string]interface{}{"problem": integratorYAML, "target": "fortran"})
	assert.Contains(t, resp.Error, "unknown target")
}

func TestEvalRoutine_FromJSONProblem(t *testing.T) {
	t.Parallel()
	req := decode(t, `{"tool":"eval_routine","params":{
		"problem": {
			"name": "integrator", "nx": 2, "nu": 1,
			"dynamics": ["x[1]", "u[0]"],
			"stage_cost": "x[0]^2 + x[1]^2 + u[0]^2",
			"terminal_cost": "x[0]^2 + x[1]^2"
		},
		"routine": "f", "x": [1, 0], "u": [2]}}`)
	resp := handler.Handle(req)
	require.Empty(t, resp.Error)
	assert.Equal(t, []float64{0, 2}, resp.Result)

	req = decode(t, `{"tool":"eval_routine","params":{"problem": "name: p\nnx: 1\nnu: 1\ndynamics: [\"u[0]\"]\nstage_cost: u[0]^2\nterminal_cost: x[0]^2\ninequality: [\"u[0] - 1\"]\nfb_epsilon: [0.01]\n",
		"routine": "hu", "x": [0], "u": [1, 0], "lmd": [0]}}`)
	resp = handler.Handle(req)
	require.Empty(t, resp.Error)
	hu := resp.Result.([]float64)
	assert.InDelta(t, math.Sqrt(0.01), hu[1], 1e-12)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tool   string
		params map[string]interface{}
		want   string
	}{
		{"nope", nil, "unknown tool"},
		{"simplify", map[string]interface{}{}, "missing param: expr"},
		{"simplify", map[string]interface{}{"expr": 3.0}, "must be a string or expression object"},
		{"simplify", map[string]interface{}{"expr": "x +"}, "syntax"},
		{"diff", map[string]interface{}{"expr": "x"}, "missing param: var"},
		{"derive", map[string]interface{}{}, "missing param: problem"},
		{"derive", map[string]interface{}{"problem": "name: p\nnx: 0\nnu: 1\n"}, "dimension must be positive"},
		{"eval_routine", map[string]interface{}{"problem": integratorYAML, "routine": "f", "x": []interface{}{1.0}}, "wrong size"},
	}
	for _, tt := range tests {
		resp := call(t, tt.tool, tt.params)
		assert.Contains(t, resp.Error, tt.want, tt.tool)
	}
}

func TestToolSpec(t *testing.T) {
	t.Parallel()
	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(tool.ToolSpec()), &spec))
	names := tool.ToolNames()
	assert.Contains(t, names, "derive")
	assert.Contains(t, names, "emit")
	assert.Contains(t, names, "cse")
	for _, name := range names {
		if name == "tool_spec" {
			continue
		}
		resp := call(t, name, map[string]interface{}{})
		assert.NotContains(t, resp.Error, "unknown tool", name)
	}
}
