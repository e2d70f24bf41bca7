// Package tool exposes the compiler through a JSON request/response
// interface suitable for agent frameworks.
//
// Expressions are accepted either as infix strings ("x[0]^2 + sin(t)") or
// as tagged JSON trees. Problems are accepted as YAML or JSON text, or as a
// JSON object, in the format read by package config.
package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/njchilds90/autogenu/config"
	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/expr"
)

var ErrUnknownTool = errors.New("tool: unknown tool")

// ============================================================
// Tool Interface
// ============================================================

type ToolRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

type ToolResponse struct {
	Result interface{} `json:"result,omitempty"`
	String string      `json:"string,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func fail(err error) ToolResponse { return ToolResponse{Error: err.Error()} }

// Handler serves tool calls. The zero value logs to slog.Default().
type Handler struct {
	Logger *slog.Logger
}

// HandleToolCall serves req with the default handler.
func HandleToolCall(req ToolRequest) ToolResponse {
	var h Handler
	return h.Handle(req)
}

type params map[string]interface{}

func (p params) getExpr(key string) (expr.Expr, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("missing param: %s", key)
	}
	return toExpr(key, v)
}

func toExpr(key string, v interface{}) (expr.Expr, error) {
	switch val := v.(type) {
	case string:
		return expr.Parse(val)
	case map[string]interface{}:
		return expr.FromJSON(val)
	}
	return nil, fmt.Errorf("param %s must be a string or expression object", key)
}

func (p params) getExprs(key string) ([]expr.Expr, error) {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("param %s must be array", key)
	}
	out := make([]expr.Expr, len(raw))
	for i, r := range raw {
		e, err := toExpr(fmt.Sprintf("%s[%d]", key, i), r)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (p params) getString(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing param: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s must be a string", key)
	}
	return s, nil
}

func (p params) getStrings(key string) ([]string, error) {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("param %s must be array", key)
	}
	out := make([]string, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("param %s[%d] must be string", key, i)
		}
		out[i] = s
	}
	return out, nil
}

func (p params) getFloats(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("param %s must be array", key)
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		f, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("param %s[%d] must be a number", key, i)
		}
		out[i] = f
	}
	return out, nil
}

func (p params) getBool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// getProblem decodes the "problem" param. JSON is valid YAML, so objects are
// re-encoded and read by the same parser as problem files.
func (p params) getProblem() (*config.Config, error) {
	v, ok := p["problem"]
	if !ok {
		return nil, errors.New("missing param: problem")
	}
	switch val := v.(type) {
	case string:
		return config.Parse([]byte(val))
	case map[string]interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return config.Parse(data)
	}
	return nil, errors.New("param problem must be a string or object")
}

func respond(e expr.Expr) ToolResponse {
	return ToolResponse{Result: expr.ToMap(e), String: e.String()}
}

func respondList(es []expr.Expr) ToolResponse {
	strs := make([]string, len(es))
	for i, e := range es {
		strs[i] = e.String()
	}
	return ToolResponse{Result: strs, String: "[" + strings.Join(strs, ", ") + "]"}
}

// Handle dispatches req to the named tool.
func (h *Handler) Handle(req ToolRequest) ToolResponse {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "tool"), slog.String("tool", req.Tool))
	resp := h.dispatch(params(req.Params), req.Tool, logger)
	if resp.Error != "" {
		logger.Debug("tool call failed", slog.String("error", resp.Error))
	}
	return resp
}

func (h *Handler) dispatch(p params, name string, logger *slog.Logger) ToolResponse {
	switch name {
	case "simplify":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		return respond(expr.Normalize(e))

	case "trig_simplify":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		return respond(expr.TrigSimplify(e))

	case "diff":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		v, err := p.getString("var")
		if err != nil {
			return fail(err)
		}
		return respond(expr.Diff(e, v))

	case "gradient":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		names, err := p.getStrings("vars")
		if err != nil {
			return fail(err)
		}
		vars := make([]expr.Expr, len(names))
		for i, n := range names {
			vars[i] = expr.S(n)
		}
		return respondList(expr.Gradient(e, vars))

	case "cse":
		es, err := p.getExprs("exprs")
		if err != nil {
			return fail(err)
		}
		prefix := emit.DefaultTempPrefix
		if s, err := p.getString("prefix"); err == nil && s != "" {
			prefix = s
		}
		repl, out := expr.CSE(es, prefix)
		temps := make([]map[string]string, len(repl))
		lines := make([]string, 0, len(repl)+len(out))
		for i, r := range repl {
			temps[i] = map[string]string{"name": r.Name, "value": r.Value.String()}
			lines = append(lines, r.Name+" = "+r.Value.String())
		}
		outs := make([]string, len(out))
		for i, e := range out {
			outs[i] = e.String()
			lines = append(lines, fmt.Sprintf("out[%d] = %s", i, outs[i]))
		}
		return ToolResponse{
			Result: map[string]interface{}{"temps": temps, "outputs": outs},
			String: strings.Join(lines, "\n"),
		}

	case "evaluate":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		env := expr.Env{}
		if raw, ok := p["env"].(map[string]interface{}); ok {
			for k, v := range raw {
				f, ok := v.(float64)
				if !ok {
					return fail(fmt.Errorf("env.%s must be a number", k))
				}
				env[k] = f
			}
		}
		v, err := expr.Evaluate(e, env)
		if err != nil {
			return fail(err)
		}
		return ToolResponse{Result: v, String: fmt.Sprintf("%.10g", v)}

	case "free_symbols":
		e, err := p.getExpr("expr")
		if err != nil {
			return fail(err)
		}
		syms := expr.SortedSymbols(e)
		return ToolResponse{Result: syms, String: strings.Join(syms, ", ")}

	case "derive":
		unit, err := h.build(p, logger)
		if err != nil {
			return fail(err)
		}
		result := map[string]interface{}{"dims": unit.Dims}
		var lines []string
		for _, r := range unit.Routines {
			strs := make([]string, 0, len(r.Stmts))
			for _, s := range r.Stmts {
				if s.Temp != "" {
					strs = append(strs, s.Temp+" = "+s.Value.String())
				} else {
					strs = append(strs, fmt.Sprintf("%s[%d] = %s", r.Out.Name, s.Index, s.Value))
				}
			}
			result[r.Name] = strs
			lines = append(lines, strs...)
		}
		if len(unit.Diagnostics) > 0 {
			result["diagnostics"] = unit.Diagnostics
		}
		return ToolResponse{Result: result, String: strings.Join(lines, "\n")}

	case "emit":
		unit, err := h.build(p, logger)
		if err != nil {
			return fail(err)
		}
		target := emit.TargetCPP
		if s, err := p.getString("target"); err == nil {
			target = emit.Target(s)
		}
		src, err := emit.Render(unit, target)
		if err != nil {
			return fail(err)
		}
		return ToolResponse{Result: map[string]interface{}{"target": target, "diagnostics": unit.Diagnostics}, String: string(src)}

	case "eval_routine":
		unit, err := h.build(p, logger)
		if err != nil {
			return fail(err)
		}
		routine, err := p.getString("routine")
		if err != nil {
			return fail(err)
		}
		var in emit.Inputs
		if t, ok := p["t"].(float64); ok {
			in.T = t
		}
		for _, f := range []struct {
			key string
			dst *[]float64
		}{{"x", &in.X}, {"u", &in.U}, {"lmd", &in.Lmd}} {
			if *f.dst, err = p.getFloats(f.key); err != nil {
				return fail(err)
			}
		}
		out, err := unit.Call(routine, in)
		if err != nil {
			return fail(err)
		}
		strs := make([]string, len(out))
		for i, v := range out {
			strs[i] = fmt.Sprintf("%.10g", v)
		}
		return ToolResponse{Result: out, String: "[" + strings.Join(strs, ", ") + "]"}

	case "tool_spec":
		return ToolResponse{String: ToolSpec()}
	}
	return fail(fmt.Errorf("%w: %q", ErrUnknownTool, name))
}

// build formulates the "problem" param into an IR unit. The simplify and cse
// params override the problem's output section.
func (h *Handler) build(p params, logger *slog.Logger) (*emit.Unit, error) {
	cfg, err := p.getProblem()
	if err != nil {
		return nil, err
	}
	res, err := cfg.Build(logger)
	if err != nil {
		return nil, err
	}
	spec, err := res.Problem.Freeze()
	if err != nil {
		return nil, err
	}
	opts := res.Emit
	if _, ok := p["simplify"]; ok {
		opts.Simplify = p.getBool("simplify")
	}
	if _, ok := p["cse"]; ok {
		opts.CSE = p.getBool("cse")
	}
	return emit.Build(spec, opts)
}

// ============================================================
// Schema
// ============================================================

// ToolSpec returns the JSON schema of every tool.
func ToolSpec() string {
	tools := []map[string]interface{}{
		ts("simplify", "Deep-normalise an expression", []string{"expr"}, map[string]string{"expr": "string|object"}),
		ts("trig_simplify", "Apply sin^2+cos^2 = 1 and exp/ln cancellation", []string{"expr"}, map[string]string{"expr": "string|object"}),
		ts("diff", "Derivative with respect to one symbol", []string{"expr", "var"}, map[string]string{"expr": "string|object", "var": "string"}),
		ts("gradient", "Gradient with respect to vars", []string{"expr", "vars"}, map[string]string{"expr": "string|object", "vars": "array"}),
		ts("cse", "Factor repeated subexpressions into temporaries", []string{"exprs"}, map[string]string{"exprs": "array", "prefix": "string"}),
		ts("evaluate", "Evaluate an expression in float64", []string{"expr"}, map[string]string{"expr": "string|object", "env": "object"}),
		ts("free_symbols", "Sorted free symbol names", []string{"expr"}, map[string]string{"expr": "string|object"}),
		ts("derive", "Formulate a problem and list its routines", []string{"problem"}, map[string]string{"problem": "string|object", "simplify": "boolean", "cse": "boolean"}),
		ts("emit", "Render a problem as C++ or Go source", []string{"problem"}, map[string]string{"problem": "string|object", "target": "string", "simplify": "boolean", "cse": "boolean"}),
		ts("eval_routine", "Evaluate one emitted routine", []string{"problem", "routine"}, map[string]string{"problem": "string|object", "routine": "string", "t": "number", "x": "array", "u": "array", "lmd": "array"}),
		ts("tool_spec", "Return this tool schema", []string{}, map[string]string{}),
	}
	spec := map[string]interface{}{"tools": tools}
	b, _ := json.MarshalIndent(spec, "", "  ")
	return string(b)
}

// ToolNames lists the tools in schema order.
func ToolNames() []string {
	var spec struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	_ = json.Unmarshal([]byte(ToolSpec()), &spec)
	out := make([]string, len(spec.Tools))
	for i, t := range spec.Tools {
		out[i] = t.Name
	}
	return out
}

func ts(name, description string, required []string, props map[string]string) map[string]interface{} {
	properties := map[string]interface{}{}
	for k, typ := range props {
		properties[k] = map[string]interface{}{"type": typ}
	}
	return map[string]interface{}{
		"name":        name,
		"description": description,
		"inputSchema": map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
