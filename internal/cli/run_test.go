package cli_test

import (
	"bytes"
	"testing"

	"github.com/calvinalkan/idxdb/internal/cli"
)

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "schema")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")

	// Should show valid global options
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--cwd")
	cli.AssertContains(t, stderr, "--backend")
}

func Test_Unknown_Backend_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--backend", "redis", "schema")

	cli.AssertContains(t, stderr, "unknown backend")
	cli.AssertContains(t, stderr, `"redis"`)
}

func Test_Bare_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	// Call Run directly without test helper (which adds --cwd)
	var stdout, stderr bytes.Buffer

	exitCode := cli.Run(nil, &stdout, &stderr, []string{"idxdb"}, nil, nil)

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr.String(), ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout.String(), "idxdb - indexed object store")
	cli.AssertContains(t, stdout.String(), "--cwd")
	cli.AssertContains(t, stdout.String(), "query <store> [flags]")
}

func Test_Main_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		args []string
	}{
		{name: "long flag", args: []string{"--help"}},
		{name: "short flag", args: []string{"-h"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout, stderr, exitCode := c.Run(tt.args...)

			if got, want := exitCode, 0; got != want {
				t.Errorf("exitCode=%d, want=%d", got, want)
			}

			if got, want := stderr, ""; got != want {
				t.Errorf("stderr=%q, want=%q", got, want)
			}

			cli.AssertContains(t, stdout, "idxdb - indexed object store")
			cli.AssertContains(t, stdout, "get <store> <key>...")
			cli.AssertContains(t, stdout, "search <store> <index> <phrase>...")
			cli.AssertContains(t, stdout, "shell")
		})
	}
}

func Test_No_Command_With_Flags_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--backend", "memory")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "no command provided")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Command_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, args := range [][]string{{"query", "--help"}, {"help", "query"}} {
		stdout := c.MustRun(args...)

		cli.AssertContains(t, stdout, "Usage: idxdb query <store> [flags]")
		cli.AssertContains(t, stdout, "--reverse")
		cli.AssertContains(t, stdout, "--index")
	}
}

func Test_Invalid_Command_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("get", "--bogus", "docs", "a")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag: --bogus")
	cli.AssertContains(t, stderr, "Usage: idxdb get <store> <key>...")
}

func Test_Invalid_Command_Flag_Prints_Flag_Help_To_Stderr_When_Command_Has_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("query", "docs", "--bogus")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag: --bogus")
	cli.AssertContains(t, stderr, "Flags:")
	cli.AssertContains(t, stderr, "--reverse")
}

func Test_Print_Config_Shows_Resolved_Paths_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".idxdb.json", `{"db": "data/x.sqlite", "log_level": "error"}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "backend=sqlite")
	cli.AssertContains(t, stdout, "db="+c.Path("data/x.sqlite"))
	cli.AssertContains(t, stdout, "log_level=error")
	cli.AssertContains(t, stdout, "project_config="+c.Path(".idxdb.json"))
}

func Test_Schema_Error_Reported_When_File_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--schema", "nope.json", "get", "docs", "a")

	cli.AssertContains(t, stderr, "reading schema")
}
