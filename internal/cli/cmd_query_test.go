package cli_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/idxdb/internal/cli"
)

func seedNumbers(t *testing.T, c *cli.CLI) {
	t.Helper()

	c.MustRun("put", "docs",
		`{"id":"a","n":1}`,
		`{"id":"b","n":2}`,
		`{"id":"c","n":3}`,
		`{"id":"d","n":4}`,
		`{"id":"e","n":5}`,
		`{"id":"m","n":-1.5}`,
		`{"id":"s"}`,
	)
}

func Test_Query_Returns_Keys_In_Range_When_Bounds_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	seedNumbers(t, c)

	for _, tt := range []struct {
		name string
		args []string
		want string
	}{
		{name: "closed open", args: []string{"--ge", "2", "--lt", "4"}, want: `"b" "c"`},
		{name: "open closed", args: []string{"--gt", "2", "--le", "4"}, want: `"c" "d"`},
		{name: "eq", args: []string{"--eq", "5"}, want: `"e"`},
		{name: "negative", args: []string{"--lt", "0"}, want: `"m"`},
		{name: "all skips items without key", args: nil, want: `"m" "a" "b" "c" "d" "e"`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "docs", "-i", "n", "--keys"}, tt.args...)
			got := strings.ReplaceAll(c.MustRun(args...), "\n", " ")

			if got != tt.want {
				t.Errorf("keys=%s, want=%s", got, tt.want)
			}
		})
	}
}

func Test_Query_Pages_Items_When_Limit_And_Offset_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	seedNumbers(t, c)

	stdout := c.MustRun("query", "docs", "-i", "n", "--reverse", "-n", "2")
	if got, want := stdout, `{"id":"e","n":5}`+"\n"+`{"id":"d","n":4}`; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	stdout = c.MustRun("query", "docs", "-i", "n", "--offset", "1", "--limit", "1")
	if got, want := stdout, `{"id":"a","n":1}`; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	stdout = c.MustRun("query", "docs", "--offset", "100")
	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}
}

func Test_Query_Counts_Entries_When_Count_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	seedNumbers(t, c)

	if got, want := c.MustRun("query", "docs", "--count"), "7"; got != want {
		t.Errorf("count=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("query", "docs", "-i", "n", "--count", "--ge", "3"), "3"; got != want {
		t.Errorf("count=%q, want=%q", got, want)
	}
}

func Test_Query_Removes_Range_When_Delete_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	seedNumbers(t, c)

	stdout := c.MustRun("query", "docs", "-i", "n", "--gt", "3", "--delete")
	cli.AssertContains(t, stdout, "removed (3, +inf) from docs")

	got := strings.ReplaceAll(c.MustRun("query", "docs", "--keys"), "\n", " ")
	if want := `"a" "b" "c" "m" "s"`; got != want {
		t.Errorf("keys=%s, want=%s", got, want)
	}
}

func Test_Query_Fails_When_Flags_Conflict_Or_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, tt := range []struct {
		args []string
		want string
	}{
		{args: []string{"--eq", "1", "--gt", "0"}, want: "--eq excludes other bounds"},
		{args: []string{"--gt", "0", "--ge", "0"}, want: "give --gt or --ge, not both"},
		{args: []string{"--lt", "0", "--le", "0"}, want: "give --lt or --le, not both"},
		{args: []string{"--limit", "-1"}, want: "invalid input"},
		{args: []string{"-i", "nope"}, want: "index not found (store=docs index=nope)"},
	} {
		args := append([]string{"query", "docs"}, tt.args...)
		stderr := c.MustFail(args...)

		cli.AssertContains(t, stderr, tt.want)
	}

	stderr := c.MustFail("query", "nope")
	cli.AssertContains(t, stderr, "nope")
}

func Test_Search_Matches_Prefixes_When_Phrase_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("put", "docs",
		`{"id":"a","text":"The Quick brown fox"}`,
		`{"id":"b","text":"quick silver"}`,
		`{"id":"c","text":"Crème brûlée"}`,
	)

	for _, tt := range []struct {
		name string
		args []string
		want []string
	}{
		{name: "prefix", args: []string{"qui"}, want: []string{`"id":"a"`, `"id":"b"`}},
		{name: "and", args: []string{"qui", "bro"}, want: []string{`"id":"a"`}},
		{name: "or", args: []string{"--or", "bro", "silv"}, want: []string{`"id":"a"`, `"id":"b"`}},
		{name: "folded", args: []string{"CREME"}, want: []string{`"id":"c"`}},
		{name: "limit", args: []string{"-n", "1", "quick"}, want: []string{`"id":"a"`}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"search", "docs", "txt"}, tt.args...)

			lines := strings.Split(c.MustRun(args...), "\n")
			if got, want := len(lines), len(tt.want); got != want {
				t.Fatalf("lines=%d, want=%d: %q", got, want, lines)
			}

			for i, want := range tt.want {
				cli.AssertContains(t, lines[i], want)
			}
		})
	}
}

func Test_Search_Warns_When_Nothing_Matches(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("put", "docs", `{"id":"a","text":"hello"}`)

	stdout, stderr, exitCode := c.Run("search", "docs", "txt", "zebra")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "warning: no matches")

	stderr = c.MustFail("search", "docs", "n", "hello")
	cli.AssertContains(t, stderr, "not a full-text index")
}
