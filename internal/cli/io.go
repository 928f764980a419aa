package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// IO collects a command's output. Warnings are repeated on stderr before
// the first stdout line and again at the end, so they survive head and tail.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO returns an IO writing to out and errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a problem that does not stop the command, such as a key
// that was not found, and what to do about it. Any warning makes the exit
// code 1; stdout output is kept.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, issue+": "+action)
}

// Println writes a line to stdout.
func (o *IO) Println(a ...any) {
	o.start()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.start()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// PrintJSON writes v as one line of JSON to stdout.
func (o *IO) PrintJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	o.Println(string(data))

	return nil
}

// ErrPrintln writes a line to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish prints the warnings a final time and returns 1 if there were any.
func (o *IO) Finish() int {
	o.start()
	o.printWarnings()

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

// start prints pending warnings once, before the first stdout write.
func (o *IO) start() {
	if o.started || len(o.warnings) == 0 {
		return
	}

	o.started = true
	o.printWarnings()
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
