package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/cel-go/cel"
)

// CELPolicy evaluates a boolean CEL expression over the token's claims, which
// are bound to the variable "claims". For example:
//
//	claims.email_verified == true && claims.email.endsWith("@example.com")
type CELPolicy struct {
	expr    string
	program cel.Program
}

// NewCELPolicy compiles expr. Expressions that cannot produce a bool are rejected.
func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(cel.Variable("claims", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile claim rule %q: %w", expr, issues.Err())
	}
	out := ast.OutputType()
	if !reflect.DeepEqual(out, cel.BoolType) && !reflect.DeepEqual(out, cel.DynType) {
		return nil, fmt.Errorf("claim rule %q must evaluate to bool, not %s", expr, out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim rule %q: %w", expr, err)
	}
	return &CELPolicy{expr: expr, program: program}, nil
}

// Evaluate passes only when the expression evaluates to true. Evaluation
// errors, such as a reference to an absent claim, reject the token.
func (p *CELPolicy) Evaluate(ctx context.Context, claims *Claims) error {
	out, _, err := p.program.Eval(map[string]any{"claims": claims.Map()})
	if err != nil {
		slog.InfoContext(ctx, "Rejecting token since claim rule failed", "rule", p.expr, "error", err)
		return fmt.Errorf("%w: claim rule %q could not be evaluated: %v", ErrInvalidClaims, p.expr, err)
	}
	if ok, isBool := out.Value().(bool); !isBool || !ok {
		slog.InfoContext(ctx, "Rejecting token since claim rule is not satisfied", "rule", p.expr)
		return fmt.Errorf("%w: claim rule %q is not satisfied", ErrInvalidClaims, p.expr)
	}
	return nil
}

// String returns the source expression
func (p *CELPolicy) String() string {
	return p.expr
}
