// Package cli is the interactive terminal front end.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	Prompt      = "你："
	ReplyPrefix = "AI："
	Farewell    = "再见！"
)

var exitTokens = map[string]bool{
	"退出":   true,
	"exit": true,
	"quit": true,
	"q":    true,
}

// IsExit reports whether input is a termination token (trimmed, case-insensitive).
func IsExit(input string) bool {
	return exitTokens[strings.ToLower(strings.TrimSpace(input))]
}

// Handler answers one user input.
type Handler func(ctx context.Context, input string) (string, error)

// REPL reads lines until a termination token, EOF or ctx cancellation.
type REPL struct {
	in         io.Reader
	out        io.Writer
	handle     Handler
	showPrompt bool
}

// New creates a REPL. The prompt is only printed when in is a terminal.
func New(in io.Reader, out io.Writer, handle Handler) *REPL {
	return &REPL{
		in:         in,
		out:        out,
		handle:     handle,
		showPrompt: isTerminal(in),
	}
}

// ShowPrompt forces the prompt on or off.
func (r *REPL) ShowPrompt(on bool) {
	r.showPrompt = on
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run blocks until the session ends. Handler errors are printed and the
// loop keeps reading; only a read failure is returned.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type readResult struct {
		line string
		err  error
		eof  bool
	}
	lines := make(chan readResult)
	go func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- readResult{line: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case lines <- readResult{err: scanner.Err(), eof: true}:
		case <-ctx.Done():
		}
	}()

	for {
		if r.showPrompt {
			fmt.Fprint(r.out, Prompt)
		}

		var res readResult
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\n"+Farewell)
			return nil
		case res = <-lines:
		}

		if res.eof {
			fmt.Fprintln(r.out, "\n"+Farewell)
			return res.err
		}

		input := strings.TrimSpace(res.line)
		if input == "" {
			continue
		}
		if IsExit(input) {
			fmt.Fprintln(r.out, Farewell)
			return nil
		}

		reply, err := r.handle(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(r.out, "\n"+Farewell)
				return nil
			}
			fmt.Fprintf(r.out, "\n错误：%v\n\n", err)
			continue
		}
		fmt.Fprintf(r.out, "\n%s%s\n\n", ReplyPrefix, reply)
		fmt.Fprintln(r.out, strings.Repeat("-", 60))
	}
}
