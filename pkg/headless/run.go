package headless

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
)

// Options describe a single invocation
type Options struct {
	Query       string
	SkillID     string
	TplName     string
	ConvID      string
	Locale      string
	Context     map[string]any
	Interactive bool
	Out         io.Writer
	// In feeds key input to the interactive view; nil reads the terminal
	In io.Reader
}

// Run invokes one skill and streams the reply to the terminal. SIGINT and
// SIGTERM stop the stream without reporting an error.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if opts.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize headless mode: %w", err)
	}
	defer func() {
		if err := r.cleanup(); err != nil {
			logger.Warn("Cleanup error: %v", err)
		}
	}()

	if opts.Interactive {
		return r.runInteractive(ctx)
	}
	return r.run(ctx)
}
