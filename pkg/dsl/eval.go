package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/hybridrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// getCELEnv 获取或创建 CEL 环境。
// 表达式可访问：
//   - item.id / item.meta / item.scores
//   - ctx（请求上下文 map）
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("ctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的布尔表达式，可并发复用。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.meta.rating >= 7.5
//   - 包含："Drama" in item.meta.genres
//   - 存在性：has(item.meta.release_year) && item.meta.release_year > 1990
//   - 组合：item.scores.popularity > 0.5 || ctx.device == "tv"
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式并检查返回类型为 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string {
	return p.expr
}

// Eval 对候选执行表达式。访问不存在的 key 会返回错误，调用方应使用 has() 判断。
func (p *Program) Eval(c *core.Candidate, reqCtx map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(c, reqCtx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", p.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(c *core.Candidate, reqCtx map[string]any) map[string]any {
	scores := make(map[string]any, len(c.Scores))
	for k, v := range c.Scores {
		scores[k] = v
	}
	meta := c.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	if reqCtx == nil {
		reqCtx = map[string]any{}
	}
	return map[string]any{
		"item": map[string]any{
			"id":     c.ID,
			"meta":   meta,
			"scores": scores,
		},
		"ctx": reqCtx,
	}
}
