package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestSchema is the schema [NewCLI] writes into its directory.
const TestSchema = `{
	// test schema
	"version": 1,
	"stores": [
		{
			"name": "docs",
			"primaryKeyPath": "id",
			"indexes": [
				{"name": "txt", "keyPath": "text", "fullText": true},
				{"name": "tags", "keyPath": "tags", "multiEntry": true},
				{"name": "email", "keyPath": "email", "unique": true},
				{"name": "n", "keyPath": "n"},
			],
		},
		{"name": "pairs", "primaryKeyPath": ["a", "b"]},
	],
}
`

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory holding a schema and the database.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a new test CLI with a temp directory containing
// idxdb.schema.json.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	c := &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{},
	}

	c.WriteFile("idxdb.schema.json", TestSchema)

	return c
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "idxdb" or "--cwd" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput("", args...)
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
// stdin must be a string or io.Reader; panics otherwise.
func (r *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader
	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"idxdb", "--cwd", r.Dir}, args...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Also fails if stdout is not empty. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		r.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// Path returns name resolved against the test directory.
func (r *CLI) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// WriteFile writes content to a file in the test directory.
func (r *CLI) WriteFile(name, content string) {
	r.t.Helper()

	err := os.WriteFile(r.Path(name), []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("failed to write %s: %v", name, err)
	}
}

// ReadFile returns the content of a file in the test directory.
func (r *CLI) ReadFile(name string) string {
	r.t.Helper()

	content, err := os.ReadFile(r.Path(name))
	if err != nil {
		r.t.Fatalf("failed to read %s: %v", name, err)
	}

	return string(content)
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
