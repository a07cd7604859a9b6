package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/mqlua"
	"github.com/aretw0/mqlua/internal/presentation/tui"
	"github.com/peterh/liner"
	"github.com/yuin/gopher-lua/parse"
	"golang.org/x/term"
)

const (
	historyFile = ".mqlua_history"
	promptMain  = "> "
	promptCont  = ">> "
)

// Executor runs one chunk of console input.
type Executor interface {
	Exec(chunk string) error
}

// Console reads Lua chunks and executes them in the root state after the
// control program has run. Errors are printed and the loop goes on. An
// interrupt at the prompt discards the chunk being typed; only end of input
// ends the console.
type Console struct {
	exec Executor
	in   io.Reader
	out  io.Writer
}

// NewConsole creates a console reading from in and writing to out.
func NewConsole(exec Executor, in io.Reader, out io.Writer) *Console {
	return &Console{
		exec: exec,
		in:   in,
		out:  out,
	}
}

// Run blocks until input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	tui.PrintBanner(c.out, mqlua.Version)
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.runLiner(ctx)
		return
	}
	c.runPlain(ctx)
}

func (c *Console) printError(err error) {
	fmt.Fprintln(c.out, tui.Error(c.out, err.Error()))
}

// eval runs one chunk and prints its error, if any.
func (c *Console) eval(chunk string) {
	if strings.TrimSpace(chunk) == "" {
		return
	}
	if err := c.exec.Exec(chunk); err != nil {
		c.printError(err)
	}
}

func (c *Console) runLiner(ctx context.Context) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for ctx.Err() == nil {
		chunk, ok := readChunk(func(prompt string) (string, error) { return ln.Prompt(prompt) })
		if !ok {
			fmt.Fprintln(c.out)
			return
		}
		c.eval(chunk)
		if strings.TrimSpace(chunk) != "" {
			ln.AppendHistory(strings.ReplaceAll(chunk, "\n", " "))
		}
	}
}

func (c *Console) runPlain(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	next := func(string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return scanner.Text(), nil
	}
	for ctx.Err() == nil {
		chunk, ok := readChunk(next)
		if !ok {
			return
		}
		c.eval(chunk)
	}
}

// readChunk reads lines until they form a complete chunk. A chunk that
// fails to parse for any reason other than ending early is returned as is so
// the error gets reported.
func readChunk(prompt func(string) (string, error)) (string, bool) {
	var b strings.Builder
	for {
		p := promptMain
		if b.Len() > 0 {
			p = promptCont
		}
		line, err := prompt(p)
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl-C: drop the pending lines, keep the console.
			return "", true
		}
		if err != nil {
			if b.Len() > 0 {
				return b.String(), true
			}
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src only fails to parse because more input is
// needed, such as an open function body.
func incomplete(src string) bool {
	_, err := parse.Parse(strings.NewReader(src), "=stdin")
	return err != nil && strings.Contains(err.Error(), "EOF")
}
