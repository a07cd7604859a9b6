package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	chunks []string
	fail   map[string]error
}

func (r *recorder) Exec(chunk string) error {
	r.chunks = append(r.chunks, chunk)
	return r.fail[chunk]
}

func TestConsole_PlainInput(t *testing.T) {
	rec := &recorder{fail: map[string]error{"bad()": errors.New("attempt to call a nil value")}}
	in := strings.NewReader("x = 1\n\nfunction f()\n  return x\nend\nbad()\nprint(f())\n")
	var out bytes.Buffer

	NewConsole(rec, in, &out).Run(context.Background())

	assert.Equal(t, []string{
		"x = 1",
		"function f()\n  return x\nend",
		"bad()",
		"print(f())",
	}, rec.chunks)
	assert.Contains(t, out.String(), "mqlua")
	assert.Contains(t, out.String(), "attempt to call a nil value")
}

func TestConsole_UnterminatedChunkAtEOF(t *testing.T) {
	rec := &recorder{}
	in := strings.NewReader("for i = 1, 2 do\n")
	var out bytes.Buffer

	NewConsole(rec, in, &out).Run(context.Background())
	assert.Equal(t, []string{"for i = 1, 2 do"}, rec.chunks)
}

func TestConsole_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	NewConsole(rec, strings.NewReader("x = 1\n"), &bytes.Buffer{}).Run(ctx)
	assert.Empty(t, rec.chunks)
}

func TestIncomplete(t *testing.T) {
	assert.True(t, incomplete("function f()"))
	assert.True(t, incomplete("t = {"))
	assert.False(t, incomplete("x = 1"))
	assert.False(t, incomplete("x = = 1"))
}

// scripted feeds readChunk canned prompt results.
func scripted(results ...any) func(string) (string, error) {
	return func(string) (string, error) {
		if len(results) == 0 {
			return "", io.EOF
		}
		next := results[0]
		results = results[1:]
		if err, ok := next.(error); ok {
			return "", err
		}
		return next.(string), nil
	}
}

func TestReadChunk_InterruptDiscardsPendingLines(t *testing.T) {
	prompt := scripted("function f()", liner.ErrPromptAborted, "x = 1")

	chunk, ok := readChunk(prompt)
	assert.True(t, ok, "an interrupt must not end the console")
	assert.Empty(t, chunk)

	chunk, ok = readChunk(prompt)
	assert.True(t, ok)
	assert.Equal(t, "x = 1", chunk)

	_, ok = readChunk(prompt)
	assert.False(t, ok, "end of input ends the console")
}
