package signing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const (
	engineScript = "script"

	// SignFunction is the global the signing script must define.
	SignFunction = "sign"
)

// Evaluator runs an externally supplied signing script. The script is opaque:
// it must define sign(query, userAgent) returning the token string, and its
// algorithm is never reproduced here.
type Evaluator struct {
	program *goja.Program
	timeout time.Duration
}

// LoadEvaluator compiles the script at path. timeout bounds each Sign call;
// zero means no bound beyond the caller's context.
func LoadEvaluator(path string, timeout time.Duration) (*Evaluator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &Error{Engine: engineScript, Err: errors.New("script path is required")}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Engine: engineScript, Err: fmt.Errorf("read script: %w", err)}
	}
	return NewEvaluator(path, string(src), timeout)
}

// NewEvaluator compiles src. name is only used in error positions.
func NewEvaluator(name, src string, timeout time.Duration) (*Evaluator, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, &Error{Engine: engineScript, Err: fmt.Errorf("compile script: %w", err)}
	}
	return &Evaluator{program: program, timeout: timeout}, nil
}

// Sign evaluates sign(query, userAgent) in a fresh runtime.
func (e *Evaluator) Sign(ctx context.Context, query, userAgent string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if _, err := vm.RunProgram(e.program); err != nil {
		return "", e.fail(ctx, "run script", err)
	}

	fn, ok := goja.AssertFunction(vm.Get(SignFunction))
	if !ok {
		return "", &Error{Engine: engineScript, Err: fmt.Errorf("script does not define %s(query, userAgent)", SignFunction)}
	}

	v, err := fn(goja.Undefined(), vm.ToValue(query), vm.ToValue(userAgent))
	if err != nil {
		return "", e.fail(ctx, "call "+SignFunction, err)
	}

	token, ok := v.Export().(string)
	if !ok {
		return "", &Error{Engine: engineScript, Err: fmt.Errorf("%s returned %T, want string", SignFunction, v.Export())}
	}
	if token == "" {
		return "", &Error{Engine: engineScript, Err: fmt.Errorf("%s returned an empty token", SignFunction)}
	}
	return token, nil
}

func (e *Evaluator) fail(ctx context.Context, step string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return &Error{Engine: engineScript, Err: fmt.Errorf("%s: interrupted: %w", step, cerr)}
	}
	return &Error{Engine: engineScript, Err: fmt.Errorf("%s: %w", step, err)}
}
