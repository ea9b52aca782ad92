// Package console formats the terminal output of the cli.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

const (
	PictoFinish      = "🏁"
	PictoStop        = "🚫"
	PictoPin         = "📌"
	PictoThermometer = "🌡"
	PictoCompass     = "🧭"
	PictoSignal      = "📶"
	PictoGear        = "⚙"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
)

var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects regular and error output, mostly for tests.
func SetOutput(w, errw io.Writer) {
	out = w
	errOut = errw
}

func Output() io.Writer {
	return out
}

// Exit formats an error message the cli prints before exiting with code.
func Exit(code int, msg string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

func Errorf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errOut, "%s: %s\n", Red("ERROR"), fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errOut, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...any) {
	_, _ = fmt.Fprintf(out, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

// PInfof prints an info line led by a pictogram.
func PInfof(picto, msg string, args ...any) {
	_, _ = fmt.Fprintf(out, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

func Printf(msg string, args ...any) {
	_, _ = fmt.Fprintf(out, msg, args...)
}
