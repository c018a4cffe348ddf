// Package printer writes user-facing command output. Log lines go through
// zerolog; everything a person is meant to read goes through a Printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
	"golang.org/x/term"
)

// ANSI color codes (Tokyo Night palette)
const (
	ColorReset     = "\033[0m"
	ColorRed       = "\033[38;2;215;95;107m"  // #d75f6b
	ColorGreen     = "\033[38;2;158;206;106m" // #9ece6a
	ColorYellow    = "\033[38;2;224;175;104m" // #e0af68
	ColorGray      = "\033[38;2;86;95;137m"   // #565f89
	ColorBold      = "\033[1m"
	ColorUnderline = "\033[4m"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer handles formatted output. Colors are used only when the writer is
// a terminal and NO_COLOR is unset.
type Printer struct {
	writer io.Writer
	color  bool
}

// New creates a new Printer that writes to the given writer
func New(w io.Writer) *Printer {
	return &Printer{
		writer: w,
		color:  colorEnabled(w),
	}
}

func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewContext returns a context with the printer attached
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError prints a formatted error box and does NOT exit
// Caller should handle exit code
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	p.writeLines(
		p.colorize(ColorRed, "╭ Error"),
		p.colorize(ColorRed, "│")+" "+p.colorize(ColorGray, err.Error()),
		p.colorize(ColorRed, "╵"),
	)
}

// printValidationErrors lists each field error under the wrapping context,
// e.g. "load config: invalid config".
func (p *Printer) printValidationErrors(wrappedErr error, fieldErrs criterio.FieldErrors) {
	errStr := wrappedErr.Error()
	errContext := ""
	if idx := strings.Index(errStr, fieldErrs.Error()); idx > 0 {
		errContext = strings.TrimSuffix(errStr[:idx], ": ")
	}

	bar := p.colorize(ColorRed, "│")
	lines := []string{p.colorize(ColorRed, "╭ Validation Error")}
	if errContext != "" {
		lines = append(lines, bar+" "+p.colorize(ColorGray, errContext), bar)
	}
	for _, fe := range fieldErrs {
		line := bar + " " + p.colorize(ColorRed, Cross) + " "
		if fe.Field != "" {
			line += p.colorize(ColorGray, fe.Field+": ")
		}
		lines = append(lines, line+fe.Err.Error())
	}
	lines = append(lines, p.colorize(ColorRed, "╵"))

	p.writeLines(lines...)
}

// Errorf prints an error message in red
func (p *Printer) Errorf(format string, args ...any) {
	p.writeLines(p.colorize(ColorRed, Cross+" "+fmt.Sprintf(format, args...)))
}

// Successf prints a success message in green
func (p *Printer) Successf(format string, args ...any) {
	p.writeLines(p.colorize(ColorGreen, Check+" "+fmt.Sprintf(format, args...)))
}

// Success prints a success message with details on a separate line
func (p *Printer) Success(message string, details string) {
	p.writeLines(p.colorize(ColorGreen, Check+" "+message))
	if details != "" {
		p.writeLines("  " + p.colorize(ColorGray, details))
	}
}

// Infof prints an info message in gray
func (p *Printer) Infof(format string, args ...any) {
	p.writeLines(p.colorize(ColorGray, Dot+" "+fmt.Sprintf(format, args...)))
}

// Warnf prints a warning message in yellow
func (p *Printer) Warnf(format string, args ...any) {
	p.writeLines(p.colorize(ColorYellow, Dot+" "+fmt.Sprintf(format, args...)))
}

// Printf prints a plain message without colors
func (p *Printer) Printf(format string, args ...any) {
	p.writeLines(fmt.Sprintf(format, args...))
}

// Section prints a section header (bold + underlined)
func (p *Printer) Section(title string) {
	p.writeLines(p.colorize(ColorBold+ColorUnderline, title))
}

// CheckItem prints a success item with green checkmark
func (p *Printer) CheckItem(label, detail string) {
	p.printItem(ColorGreen, Check, label, detail)
}

// WarnItem prints a warning item with yellow dot
func (p *Printer) WarnItem(label, detail string) {
	p.printItem(ColorYellow, Dot, label, detail)
}

// FailItem prints a failure item with red cross
func (p *Printer) FailItem(label, detail string) {
	p.printItem(ColorRed, Cross, label, detail)
}

func (p *Printer) printItem(color, symbol, label, detail string) {
	line := "  " + p.colorize(color, symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.writeLines(line)
}

func (p *Printer) colorize(color, text string) string {
	if !p.color {
		return text
	}
	return color + text + ColorReset
}

func (p *Printer) writeLines(lines ...string) {
	_, _ = io.WriteString(p.writer, strings.Join(lines, "\n")+"\n")
}

// StatusOK returns a green checkmark with "ok" for use in tables.
func StatusOK() string {
	return status(ColorGreen, Check, "ok")
}

// StatusFailed returns a red cross with the given message for use in tables.
func StatusFailed(msg string) string {
	return status(ColorRed, Cross, msg)
}

// StatusWarn returns a yellow dot with the given message for use in tables.
func StatusWarn(msg string) string {
	return status(ColorYellow, Dot, msg)
}

// status honors NO_COLOR; table cells have no writer to check.
func status(color, symbol, msg string) string {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return symbol + " " + msg
	}
	return color + symbol + ColorReset + " " + msg
}
