package tour

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Probe reads page state for gate expressions.
type Probe interface {
	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Value(ctx context.Context, selector string) (string, error)
	Visible(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
}

// GateVars are the variables visible to a gate expression.
type GateVars struct {
	Step  int // current step index
	Total int // number of steps
}

// GateCompiler compiles CEL gate expressions and caches the checked ASTs.
//
// Expressions may call exists(s), text(s), value(s), visible(s) and
// count(s) with a CSS selector, and read the int variables step and total.
type GateCompiler struct {
	env   *cel.Env
	cache *lru.Cache[string, *cel.Ast]
}

// NewGateCompiler creates a compiler caching up to size expressions.
func NewGateCompiler(size int) (*GateCompiler, error) {
	if size < 16 {
		size = 16
	}
	opts := append([]cel.EnvOption{
		cel.Variable("step", cel.IntType),
		cel.Variable("total", cel.IntType),
	}, gateFunctions(nil)...)
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("gate env: %w", err)
	}
	cache, err := lru.New[string, *cel.Ast](size)
	if err != nil {
		return nil, err
	}
	return &GateCompiler{env: env, cache: cache}, nil
}

// Compile parses and type-checks expr. The result must be a bool.
func (g *GateCompiler) Compile(expr string) (*cel.Ast, error) {
	if ast, ok := g.cache.Get(expr); ok {
		return ast, nil
	}
	ast, iss := g.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile %q: result is %s, want bool", expr, ast.OutputType())
	}
	g.cache.Add(expr, ast)
	return ast, nil
}

// Eval evaluates expr against probe. Probe errors fail the evaluation.
func (g *GateCompiler) Eval(ctx context.Context, expr string, probe Probe, vars GateVars) (bool, error) {
	ast, err := g.Compile(expr)
	if err != nil {
		return false, err
	}
	env, err := g.env.Extend(gateFunctions(&probeBinding{ctx: ctx, probe: probe})...)
	if err != nil {
		return false, fmt.Errorf("gate env: %w", err)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("gate program: %w", err)
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"step":  vars.Step,
		"total": vars.Total,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: result %v is not a bool", expr, out.Value())
	}
	return b, nil
}

// probeBinding connects gate functions to a probe for one evaluation.
// A nil binding (used for type-checking only) fails every call.
type probeBinding struct {
	ctx   context.Context
	probe Probe
}

func (b *probeBinding) call(name string, arg ref.Val, fn func(ctx context.Context, p Probe, sel string) ref.Val) ref.Val {
	sel, ok := arg.(types.String)
	if !ok {
		return types.NewErr("%s: selector must be a string", name)
	}
	if b == nil || b.probe == nil {
		return types.NewErr("%s: no page attached", name)
	}
	return fn(b.ctx, b.probe, string(sel))
}

// gateFunctions declares the page functions. Extending an env with the same
// overloads replaces their bindings.
func gateFunctions(b *probeBinding) []cel.EnvOption {
	unary := func(name string, result *cel.Type, fn func(ctx context.Context, p Probe, sel string) ref.Val) cel.EnvOption {
		return cel.Function(name,
			cel.Overload(name+"_string", []*cel.Type{cel.StringType}, result,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					return b.call(name, arg, fn)
				}),
			),
		)
	}
	return []cel.EnvOption{
		unary("exists", cel.BoolType, func(ctx context.Context, p Probe, sel string) ref.Val {
			ok, err := p.Exists(ctx, sel)
			if err != nil {
				return types.NewErr("exists(%q): %v", sel, err)
			}
			return types.Bool(ok)
		}),
		unary("visible", cel.BoolType, func(ctx context.Context, p Probe, sel string) ref.Val {
			ok, err := p.Visible(ctx, sel)
			if err != nil {
				return types.NewErr("visible(%q): %v", sel, err)
			}
			return types.Bool(ok)
		}),
		unary("text", cel.StringType, func(ctx context.Context, p Probe, sel string) ref.Val {
			s, err := p.Text(ctx, sel)
			if err != nil {
				return types.NewErr("text(%q): %v", sel, err)
			}
			return types.String(s)
		}),
		unary("value", cel.StringType, func(ctx context.Context, p Probe, sel string) ref.Val {
			s, err := p.Value(ctx, sel)
			if err != nil {
				return types.NewErr("value(%q): %v", sel, err)
			}
			return types.String(s)
		}),
		unary("count", cel.IntType, func(ctx context.Context, p Probe, sel string) ref.Val {
			n, err := p.Count(ctx, sel)
			if err != nil {
				return types.NewErr("count(%q): %v", sel, err)
			}
			return types.Int(n)
		}),
	}
}
