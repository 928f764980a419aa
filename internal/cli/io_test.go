package cli_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/calvinalkan/idxdb/internal/cli"
)

func Test_IO_Prints_Warnings_Before_Output_And_At_End_When_Warned(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	o := cli.NewIO(&out, &errOut)
	o.Warn("not found: a", "check the key")
	o.Println("item")
	o.Println("item")

	if got, want := o.Finish(), 1; got != want {
		t.Errorf("Finish()=%d, want=%d", got, want)
	}

	if got, want := strings.Count(errOut.String(), "warning: not found: a: check the key"), 2; got != want {
		t.Errorf("warning printed %d times, want %d\nstderr:\n%s", got, want, errOut.String())
	}

	if got, want := out.String(), "item\nitem\n"; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}
}

func Test_IO_Finish_Returns_Zero_When_No_Warnings(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	o := cli.NewIO(&out, &errOut)
	o.Println("ok")

	if got, want := o.Finish(), 0; got != want {
		t.Errorf("Finish()=%d, want=%d", got, want)
	}

	if errOut.Len() != 0 {
		t.Errorf("stderr=%q, want empty", errOut.String())
	}
}
