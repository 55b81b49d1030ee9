package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// OutcomeKind tells which tier of a fallback call produced the result.
type OutcomeKind int

const (
	// Success means the primary model answered.
	Success OutcomeKind = iota
	// FallbackSuccess means the primary failed and the fallback answered.
	FallbackSuccess
	// Failed means neither model answered.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case FallbackSuccess:
		return "fallback_success"
	default:
		return "failed"
	}
}

// Outcome is the result of CallWithFallback. Value is only meaningful when
// Kind is not Failed. PrimaryErr is set whenever the primary call failed.
type Outcome[T any] struct {
	Kind       OutcomeKind
	Value      T
	Model      schemas.ModelRef
	PrimaryErr error
	Err        error
}

// OK reports whether either tier produced a value.
func (o Outcome[T]) OK() bool { return o.Kind != Failed }

// ErrNoFallback is reported when the primary fails and no fallback is set.
var ErrNoFallback = errors.New("no fallback model configured")

// CallWithFallback runs call with the primary model and, if that fails, once
// with the fallback model. It holds no state; callers decide what a Failed
// outcome means for them.
func CallWithFallback[T any](ctx context.Context, primary, fallback schemas.ModelRef, call func(context.Context, schemas.ModelRef) (T, error)) Outcome[T] {
	v, err := call(ctx, primary)
	if err == nil {
		return Outcome[T]{Kind: Success, Value: v, Model: primary}
	}
	out := Outcome[T]{Kind: Failed, PrimaryErr: err}

	// Nothing to fall back to, or the caller gave up.
	if fallback.IsZero() || fallback == primary {
		out.Err = fmt.Errorf("primary model %s failed: %w (%v)", primary, err, ErrNoFallback)
		return out
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Err = fmt.Errorf("primary model %s failed: %w", primary, ctxErr)
		return out
	}

	v, ferr := call(ctx, fallback)
	if ferr != nil {
		out.Err = fmt.Errorf("primary model %s failed (%v); fallback model %s failed: %w", primary, err, fallback, ferr)
		return out
	}
	out.Kind = FallbackSuccess
	out.Value = v
	out.Model = fallback
	return out
}
