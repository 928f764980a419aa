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

	"github.com/google/shlex"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func (a *app) shellCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands interactively",
		Long: `Read commands line by line and run them against one open database.

Useful with the memory backend, whose data lives only as long as the
process. Words may be quoted with ' or ". Type "exit" to leave.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0, "no arguments")
			if err != nil {
				return err
			}

			sh := &shell{app: a, out: o.out, errOut: o.errOut}

			if f, ok := a.stdin.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
				return sh.interactive(ctx)
			}

			return sh.script(ctx, a.stdin)
		},
	}
}

type shell struct {
	app    *app
	out    io.Writer
	errOut io.Writer
}

// exec runs one line. Returns false when the shell should stop.
func (sh *shell) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return true
	}

	args, err := shlex.Split(line)
	if err != nil {
		fprintln(sh.errOut, "error:", err)

		return true
	}

	if len(args) == 0 {
		return true
	}

	switch args[0] {
	case "exit", "quit":
		return false
	}

	sh.app.dispatch(ctx, NewIO(sh.out, sh.errOut), args, false)

	return true
}

func (sh *shell) script(ctx context.Context, r io.Reader) error {
	if r == nil {
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !sh.exec(ctx, sc.Text()) {
			return nil
		}
	}

	err := sc.Err()
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".idxdb_history")
}

func (sh *shell) interactive(ctx context.Context) error {
	state := liner.NewLiner()
	defer func() { _ = state.Close() }()

	state.SetCtrlCAborts(true)
	state.SetCompleter(sh.complete)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	defer sh.saveHistory(state)

	fprintln(sh.out, `idxdb shell. Type "help" for commands, "exit" to leave.`)

	for ctx.Err() == nil {
		line, err := state.Prompt("idxdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		if strings.TrimSpace(line) != "" {
			state.AppendHistory(line)
		}

		if !sh.exec(ctx, line) {
			return nil
		}
	}

	return ctx.Err()
}

func (sh *shell) saveHistory(state *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	_, _ = state.WriteHistory(f)
	_ = f.Close()
}

// complete completes command names and, after a command, store names.
func (sh *shell) complete(line string) []string {
	var candidates []string

	words := strings.Fields(line)
	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(line, " ")) {
		for _, cmd := range sh.app.commands(false) {
			candidates = append(candidates, cmd.Name()+" ")
		}

		candidates = append(candidates, "help ", "exit")
	} else if db := sh.app.db; db != nil {
		prefix := strings.Join(words[:1], " ") + " "
		for _, name := range db.Schema().StoreNames() {
			candidates = append(candidates, prefix+name+" ")
		}
	}

	var out []string

	for _, c := range candidates {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}
