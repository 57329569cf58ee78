// Package evaluator runs the resources booted by the resource manager:
// scripts in one shared JavaScript runtime and stylesheets appended to one
// ordered document.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ScriptError is returned when a script throws or does not compile.
type ScriptError struct {
	Path string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("evaluating %v: %v", e.Path, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// JS evaluates scripts in a single runtime, so globals defined by one script
// are visible to all later ones.
type JS struct {
	m  sync.Mutex
	vm *goja.Runtime

	// OnConsole, if set, receives every console call in addition to the log.
	OnConsole func(level log.Level, msg string)

	evaluated []string
}

// NewJS returns a runtime with a console object bound to the logger.
func NewJS() *JS {
	js := &JS{vm: goja.New()}

	console := js.vm.NewObject()
	for name, level := range map[string]log.Level{
		"log":   log.InfoLevel,
		"info":  log.InfoLevel,
		"debug": log.DebugLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
	} {
		err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			js.console(level, call.Arguments)
			return goja.Undefined()
		})
		if err != nil {
			panic(err)
		}
	}

	if err := js.vm.Set("console", console); err != nil {
		panic(err)
	}

	return js
}

func (js *JS) console(level log.Level, args []goja.Value) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, arg.String())
	}
	msg := strings.Join(parts, " ")

	log.WithField("source", "console").Log(level, msg)
	if js.OnConsole != nil {
		js.OnConsole(level, msg)
	}
}

// Evaluate runs src as a classic script named path. Cancelling ctx interrupts
// a running script.
func (js *JS) Evaluate(ctx context.Context, path string, src []byte) error {
	js.m.Lock()
	defer js.m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		js.vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		js.vm.ClearInterrupt()
	}()

	_, err := js.vm.RunScript(path, string(src))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return &ScriptError{Path: path, Err: cause}
			}
		}
		return &ScriptError{Path: path, Err: err}
	}

	js.evaluated = append(js.evaluated, path)
	log.Debugf("evaluated %v", path)
	return nil
}

// Evaluated returns the paths of all scripts that ran to completion, in
// order.
func (js *JS) Evaluated() []string {
	js.m.Lock()
	defer js.m.Unlock()
	return append([]string(nil), js.evaluated...)
}

// Global returns the exported value of the global name, or nil if it is not
// defined.
func (js *JS) Global(name string) interface{} {
	js.m.Lock()
	defer js.m.Unlock()

	v := js.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}
