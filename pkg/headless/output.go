package headless

import (
	"fmt"
	"io"

	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/console"
	"github.com/killallgit/skillstream/pkg/logger"
)

// Output handles console output for headless mode
type Output struct {
	out     io.Writer
	printer *console.Printer
}

// NewOutput creates a new output handler
func NewOutput(out io.Writer, printer *console.Printer) *Output {
	return &Output{out: out, printer: printer}
}

// Error prints an error message and logs it
func (o *Output) Error(msg string) {
	logger.Error("%s", msg)
	fmt.Fprintln(o.out, console.DefaultStyles().Error.Render(msg))
}

// Summary prints sources and token usage of the finished replies
func (o *Output) Summary(msgs []chat.Message) {
	if o.printer == nil {
		return
	}
	o.printer.PrintSources(msgs)
	o.printer.PrintUsage(msgs)
}
