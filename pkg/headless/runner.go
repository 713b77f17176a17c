package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/console"
	"github.com/killallgit/skillstream/pkg/history"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/orchestrator"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/transport"
	"github.com/redis/go-redis/v9"
)

const historyConnectTimeout = 3 * time.Second

// runner wires a transport, the orchestrator and terminal output together
type runner struct {
	opts      Options
	transport transport.Transport
	orch      *orchestrator.Orchestrator
	printer   *console.Printer
	output    *Output
	redis     *redis.Client
}

func newRunner(ctx context.Context, cfg *config.Config, opts Options) (*runner, error) {
	t, err := transport.New(cfg)
	if err != nil {
		return nil, err
	}
	t = withEventLog(t)

	printer, err := console.NewPrinter(opts.Out, cfg.Console)
	if err != nil {
		return nil, err
	}

	r := &runner{
		opts:      opts,
		transport: t,
		printer:   printer,
		output:    NewOutput(opts.Out, printer),
	}

	options := []orchestrator.Option{
		orchestrator.WithFlushInterval(cfg.Stream.FlushInterval),
	}
	if opts.Interactive {
		options = append(options, orchestrator.WithNotifier(orchestrator.NotifierFunc(func(err error) {
			logger.Error("Stream failed: %v", err)
		})))
	} else {
		options = append(options, orchestrator.WithNotifier(printer))
	}

	if cfg.History.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, historyConnectTimeout)
		archive, client, err := history.Connect(connectCtx, cfg.History)
		cancel()
		if err != nil {
			// The answer matters more than the archive
			logger.Warn("History disabled: %v", err)
		} else {
			r.redis = client
			options = append(options, orchestrator.WithArchiver(archive))
		}
	}

	orch, err := orchestrator.New(t, chat.NewStore(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	r.orch = orch
	return r, nil
}

func (r *runner) task() skill.InvokeRequest {
	convID := r.opts.ConvID
	if convID == "" {
		convID = uuid.NewString()
	}
	return skill.InvokeRequest{
		SkillID: r.opts.SkillID,
		TplName: r.opts.TplName,
		ConvID:  convID,
		Locale:  r.opts.Locale,
		Input:   skill.Input{Query: r.opts.Query},
		Context: r.opts.Context,
	}
}

// run streams one reply to the printer and waits for it to finish
func (r *runner) run(ctx context.Context) error {
	detach := r.printer.Attach(r.orch.Store())
	defer detach()

	logger.Debug("User query: %s", r.opts.Query)
	sess, err := r.orch.Start(ctx, r.task())
	if err != nil {
		return r.finish(sess, err)
	}

	err = r.wait(ctx)
	return r.finish(sess, err)
}

// wait blocks until the session ends, shutting it down when ctx is cancelled
func (r *runner) wait(ctx context.Context) error {
	err := r.orch.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("Interrupted, stopping stream")
		r.orch.Shutdown()
		return r.orch.Wait(context.Background())
	}
	return err
}

func (r *runner) finish(sess *orchestrator.Session, err error) error {
	msgs := r.orch.Store().Messages()
	if err != nil {
		r.orch.Store().Append(chat.NewErrorMessage(err.Error()))
		return err
	}

	if sess != nil && sess.State() == stream.StateAborted {
		r.output.Error("Stopped")
		return nil
	}
	r.output.Summary(msgs)
	logger.Debug("Response complete (%d characters)", len(r.printer.Content()))
	return nil
}

// runInteractive renders the session with bubbletea until it ends or the
// user stops it
func (r *runner) runInteractive(ctx context.Context) error {
	model := console.NewModel(r.orch.Shutdown)
	options := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(r.opts.Out)}
	if r.opts.In != nil {
		options = append(options, tea.WithInput(r.opts.In))
	}
	program := tea.NewProgram(model, options...)

	bridge := console.NewTeaBridge(program)
	detachStore := bridge.AttachStore(r.orch.Store())
	defer detachStore()
	detachBus := bridge.AttachBus(r.orch.Bus())
	defer detachBus()

	go func() {
		if _, err := r.orch.Start(ctx, r.task()); err != nil {
			bridge.Done(err)
			return
		}
		bridge.Done(r.wait(ctx))
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run interactive view: %w", err)
	}
	r.orch.Shutdown()
	return model.Err()
}

// cleanup releases transport connections and the history client
func (r *runner) cleanup() error {
	if s, ok := r.transport.(shutdowner); ok {
		s.Shutdown()
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	return nil
}
