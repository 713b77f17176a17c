package headless

import (
	"context"

	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/transport"
)

// loggingTransport tees every event of a transport into the system log
// before the orchestrator sees it
type loggingTransport struct {
	transport.Transport
}

func withEventLog(t transport.Transport) transport.Transport {
	return &loggingTransport{Transport: t}
}

func (l *loggingTransport) Open(ctx context.Context, task skill.InvokeRequest, h stream.Handler) (*transport.Handle, error) {
	logged := stream.NewMultiHandler(&stream.LogHandler{Transport: l.Name()}, h)
	return l.Transport.Open(ctx, task, logged)
}

// shutdowner is implemented by transports that hold connections across sessions
type shutdowner interface {
	Shutdown()
}

func (l *loggingTransport) Shutdown() {
	if s, ok := l.Transport.(shutdowner); ok {
		s.Shutdown()
	}
}
