// Package pr is a thin wrapper for unified output in the interactive CLI
// demo. It initializes readline with a cancelable stdin, redirects
// stdout/stderr onto its buffers, and exposes print helpers for normal and
// diagnostic output.
// Concurrency: the mutex only guards swapping the target writers; the
// writes themselves aren't serialized here and must be thread-safe on the
// writer's own side.

package pr

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
)

var (
	// rl is the active readline instance. Set by Init(); nil before that.
	rl *readline.Instance
	// out is the current stdout target. Before Init() it's os.Stdout; after, rl.Stdout().
	out io.Writer = os.Stdout
	// errOut is the current stderr target. Before Init() it's os.Stderr; after, rl.Stderr().
	errOut io.Writer = os.Stderr
	// mu guards swapping the writer references and cancelableIn, not the writes themselves.
	mu sync.Mutex

	// cancelableIn is the stdin handle that can be closed to interrupt a
	// pending read (surfaces as io.EOF in readline). Set in Init() via
	// readline.NewCancelableStdin.
	cancelableIn interface{ Close() error }
)

// Init sets up readline and redirects the package's output streams onto
// its stdout/stderr. Uses a cancelable stdin so a pending read can be
// interrupted on shutdown. Not meant to be called twice.
func Init() error {
	// Closing cs surfaces io.EOF to readline, letting a pending read return cleanly.
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}
	rl = newRl

	mu.Lock()
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// InterruptReadline closes the cancelable stdin: Readline() gets io.EOF
// and returns. Idempotent: a second close is a no-op in the underlying
// implementation.
func InterruptReadline() {
	if cancelableIn != nil {
		_ = cancelableIn.Close()
	}
}

// SetPrompt sets the prompt string. Assumes Init() has already run.
func SetPrompt(prompt string) {
	rl.SetPrompt(prompt)
}

// Rl returns the current readline instance (nil if Init() hasn't run).
func Rl() *readline.Instance {
	return rl
}

// Stdout returns the current stdout writer. The lock only guards reading
// the reference; thread safety of the writes themselves depends on the
// writer (rl.Stdout is safe for concurrent use).
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr returns the current stderr writer. Same caveat as Stdout.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// Print writes values to Stdout without a trailing newline.
func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

// Println writes values to Stdout followed by a newline. Works even
// before Init(), falling back to os.Stdout.
func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

// Printf formats and writes to Stdout. Prefer pre-built strings on hot paths.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

// ErrPrint writes values to Stderr without a trailing newline.
func ErrPrint(a ...any) {
	fmt.Fprint(Stderr(), a...)
}

// ErrPrintln writes values to Stderr followed by a newline.
func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

// ErrPrintf formats and writes to Stderr.
func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-prints a value to Stdout via kr/pretty, recursing into
// nested structs/slices/maps instead of %+v's flat field dump. Used by
// the console's /debug command to dump live subsystem state. Avoid on
// hot paths due to allocations.
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}

// Pf returns the kr/pretty representation of a value. Useful in logs
// when a plain %v would collapse a nested struct to something
// unreadable.
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}
