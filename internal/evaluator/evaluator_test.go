package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSSharedGlobals(t *testing.T) {
	js := NewJS()
	ctx := context.Background()

	require.NoError(t, js.Evaluate(ctx, "x.js", []byte("var answer = 41;")))
	require.NoError(t, js.Evaluate(ctx, "y.js", []byte("answer = answer + 1;")))

	assert.Equal(t, int64(42), js.Global("answer"))
	assert.Nil(t, js.Global("undefinedName"))
	assert.Equal(t, []string{"x.js", "y.js"}, js.Evaluated())
}

func TestJSReferenceError(t *testing.T) {
	js := NewJS()

	err := js.Evaluate(context.Background(), "y.js", []byte("var y = x + 1;"))
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, "y.js", scriptErr.Path)
	assert.Contains(t, err.Error(), "ReferenceError")
	assert.Empty(t, js.Evaluated())
}

func TestJSSyntaxError(t *testing.T) {
	js := NewJS()
	err := js.Evaluate(context.Background(), "bad.js", []byte("function ("))
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
}

func TestJSConsole(t *testing.T) {
	js := NewJS()

	var got []string
	js.OnConsole = func(level log.Level, msg string) {
		got = append(got, level.String()+": "+msg)
	}

	require.NoError(t, js.Evaluate(context.Background(), "app.js", []byte("console.log(1)\nconsole.warn('a', 'b')\n")))
	assert.Equal(t, []string{"info: 1", "warning: a b"}, got)
}

func TestJSInterrupt(t *testing.T) {
	js := NewJS()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := js.Evaluate(ctx, "loop.js", []byte("for (;;) {}"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the runtime is usable after an interrupt
	require.NoError(t, js.Evaluate(context.Background(), "ok.js", []byte("var ok = true;")))
	assert.Equal(t, true, js.Global("ok"))
}

func TestStylesheetOrder(t *testing.T) {
	s := NewStylesheet()
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, "base.css", []byte("body { color: black; }")))
	require.NoError(t, s.Apply(ctx, "theme.css", []byte("body { color: white; }\n")))

	sheets := s.Sheets()
	require.Len(t, sheets, 2)
	assert.Equal(t, "base.css", sheets[0].Path)
	assert.Equal(t, "theme.css", sheets[1].Path)

	assert.Equal(t, "/* base.css */\nbody { color: black; }\n/* theme.css */\nbody { color: white; }\n", s.String())
}

func TestStylesheetInvalid(t *testing.T) {
	s := NewStylesheet()
	require.Error(t, s.Apply(context.Background(), "bad.css", []byte{0xff, 0xfe}))
	assert.Empty(t, s.Sheets())
}
