package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/idxdb/internal/config"
	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/memdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/sqlitedb"
)

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the running command. sigCh may be nil.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	globals := newGlobalFlags()

	err := globals.set.Parse(args[min(1, len(args)):])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals.set)

		return 1
	}

	rest := globals.set.Args()
	if globals.help || len(args) <= 1 {
		printUsage(out, globals.set)

		return 0
	}

	if len(rest) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, globals.set)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.cwd,
		ConfigPath:      globals.configPath,
		Overrides:       globals.overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	level, _ := cfg.Level()

	a := &app{
		cfg:   cfg,
		log:   slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})),
		stdin: stdin,
		env:   env,
	}

	defer func() {
		closeErr := a.close()
		if closeErr != nil {
			fprintln(errOut, "error:", closeErr)
		}
	}()

	return a.dispatch(ctx, NewIO(out, errOut), rest, true)
}

type globalFlags struct {
	set        *flag.FlagSet
	cwd        string
	configPath string
	help       bool
	overrides  config.Config
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("idxdb", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(&strings.Builder{})
	g.set.StringVarP(&g.cwd, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.set.StringVar(&g.overrides.Schema, "schema", "", "Schema `file` (JSONC)")
	g.set.StringVar(&g.overrides.Backend, "backend", "", "Storage `backend`: sqlite or memory")
	g.set.StringVar(&g.overrides.DB, "db", "", "SQLite database `file`")
	g.set.StringVar(&g.overrides.LogLevel, "log-level", "", "Log `level`: debug, info, warn or error")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

// app holds what commands share for one invocation. The provider is opened
// on first use, so help and print-config work without a schema.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	stdin io.Reader
	env   map[string]string

	db idxdb.Provider
}

func (a *app) provider(ctx context.Context) (idxdb.Provider, error) {
	if a.db != nil {
		return a.db, nil
	}

	schema, err := idxdb.LoadSchema(a.cfg.SchemaAbs)
	if err != nil {
		return nil, err
	}

	switch a.cfg.Backend {
	case config.BackendMemory:
		a.db, err = memdb.Open(schema, memdb.Options{Logger: a.log})
	default:
		err = os.MkdirAll(filepath.Dir(a.cfg.DBAbs), 0o750)
		if err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		a.db, err = sqlitedb.Open(ctx, schema, sqlitedb.Options{Path: a.cfg.DBAbs, Logger: a.log})
	}

	if err != nil {
		a.db = nil

		return nil, err
	}

	return a.db, nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}

	err := a.db.Close(context.Background())
	a.db = nil

	return err
}

// commands returns fresh command instances; flag sets keep parsed values,
// so every invocation needs its own.
func (a *app) commands(withShell bool) []*Command {
	cmds := []*Command{
		a.schemaCmd(),
		a.putCmd(),
		a.getCmd(),
		a.rmCmd(),
		a.queryCmd(),
		a.searchCmd(),
		a.clearCmd(),
		a.exportCmd(),
		a.importCmd(),
	}

	if withShell {
		cmds = append(cmds, a.shellCmd())
	}

	return append(cmds, PrintConfigCmd(&a.cfg))
}

// dispatch runs the command named by args[0] and returns the exit code.
func (a *app) dispatch(ctx context.Context, o *IO, args []string, withShell bool) int {
	name := args[0]

	if name == "help" {
		if len(args) > 1 {
			return a.dispatch(ctx, o, []string{args[1], "--help"}, withShell)
		}

		printCommands(o, a.commands(withShell))

		return 0
	}

	for _, cmd := range a.commands(withShell) {
		if cmd.Name() == name {
			code := cmd.Run(ctx, o, args[1:])

			return max(code, o.Finish())
		}
	}

	o.ErrPrintln("error: unknown command:", name)

	return 1
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet) {
	fprintln(w, "idxdb - indexed object store")
	fprintln(w)
	fprintln(w, "Usage: idxdb [global flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")

	var buf strings.Builder

	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})

	_, _ = io.WriteString(w, buf.String())

	fprintln(w)
	fprintln(w, "Commands:")

	a := &app{}
	for _, cmd := range a.commands(true) {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w)
	fprintln(w, `Run "idxdb <command> --help" for command flags.`)
}

func printCommands(o *IO, cmds []*Command) {
	o.Println("Commands:")

	for _, cmd := range cmds {
		o.Println(cmd.HelpLine())
	}
}
