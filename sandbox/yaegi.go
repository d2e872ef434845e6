// Package sandbox runs tool source with the yaegi Go interpreter.
//
// Tool source defines one of
//
//	func Run(args map[string]interface{}) (interface{}, error)
//	func Run(args string) (string, error)
//
// The second form receives the call arguments as a JSON document. Imports are
// limited to an allowlist of pure stdlib packages; this is a convenience
// filter, not an isolation boundary.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"branchchat/config"
)

const entryPoint = "main.Run"

var (
	ErrForbiddenImport = errors.New("forbidden import")
	ErrNoEntryPoint    = errors.New("tool source does not define Run")
	ErrBadSignature    = errors.New("tool Run function has an unsupported signature")
)

var defaultAllowed = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"path",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// Executor interprets tool source. It is safe for concurrent use; every call
// gets a fresh interpreter.
type Executor struct {
	allowed map[string]bool
}

func NewExecutor(extraAllowed ...string) *Executor {
	allowed := make(map[string]bool, len(defaultAllowed)+len(extraAllowed))
	for _, pkg := range defaultAllowed {
		allowed[pkg] = true
	}
	for _, pkg := range extraAllowed {
		allowed[pkg] = true
	}
	return &Executor{allowed: allowed}
}

// Execute evaluates source and calls its Run function with args. The call is
// abandoned when ctx is done; the interpreter goroutine is left to finish on
// its own.
func (e *Executor) Execute(ctx context.Context, source string, args map[string]any) (any, error) {
	code := wrapSource(source)
	if err := e.validateImports(code); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return nil, fmt.Errorf("tool source evaluation failed: %w", err)
	}

	fn, err := i.EvalWithContext(ctx, entryPoint)
	if err != nil {
		return nil, ErrNoEntryPoint
	}

	var call func() (any, error)
	switch run := fn.Interface().(type) {
	case func(map[string]interface{}) (interface{}, error):
		call = func() (any, error) { return run(cloneArgs(args)) }
	case func(string) (string, error):
		input, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		call = func() (any, error) { return run(string(input)) }
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadSignature, fn.Type())
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := call()
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			config.Debugf("[Sandbox] Run returned error: %v", out.err)
		}
		return out.value, out.err
	case <-ctx.Done():
		config.Debugf("[Sandbox] Run abandoned: %v", ctx.Err())
		return nil, fmt.Errorf("tool execution timed out: %w", ctx.Err())
	}
}

// Allowed lists the importable packages in sorted order.
func (e *Executor) Allowed() []string {
	pkgs := make([]string, 0, len(e.allowed))
	for pkg := range e.allowed {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

func (e *Executor) validateImports(code string) error {
	file, err := parser.ParseFile(token.NewFileSet(), "tool.go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("tool source does not parse: %w", err)
	}

	var forbidden []string
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("tool source does not parse: %w", err)
		}
		if !e.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %s", ErrForbiddenImport, strings.Join(forbidden, ", "))
	}
	return nil
}

func wrapSource(source string) string {
	trimmed := strings.TrimSpace(source)
	if strings.HasPrefix(trimmed, "package ") {
		return source
	}
	return "package main\n\n" + source
}

// The interpreted function may mutate its argument map.
func cloneArgs(args map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
