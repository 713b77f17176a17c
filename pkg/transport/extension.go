package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/tidwall/sjson"
)

const (
	taskStatusStart    = "start"
	taskStatusShutdown = "shutdown"
)

// ExtensionTransport posts tasks to a named message port and listens for
// `{type, message}` envelopes coming back on it
type ExtensionTransport struct {
	ports    *PortManager
	portName string
	source   string

	mu      sync.Mutex
	port    *Port
	current *Handle
}

// NewExtensionTransport creates the extension transport from its config section
func NewExtensionTransport(cfg config.ExtensionConfig, ports *PortManager) *ExtensionTransport {
	if ports == nil {
		ports = NewPortManager(cfg.PortURL)
	}
	return &ExtensionTransport{
		ports:    ports,
		portName: cfg.PortName,
		source:   cfg.Source,
	}
}

func (e *ExtensionTransport) Name() string {
	return config.RuntimeExtension
}

// Open re-binds the port, then posts task with a fresh correlation id
func (e *ExtensionTransport) Open(ctx context.Context, task skill.InvokeRequest, h stream.Handler) (*Handle, error) {
	e.unbind()

	port, err := e.ports.Get(ctx, e.portName)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	handle := NewHandle(uuid.NewString(), cancel)

	port.AddListener(handle.ID, func(raw []byte) {
		e.route(handle, h, raw)
	})

	e.mu.Lock()
	e.port = port
	e.current = handle
	e.mu.Unlock()

	msg, err := e.startMessage(task, handle.ID)
	if err != nil {
		e.detach(port, handle)
		return nil, err
	}
	if err := port.Post(msg); err != nil {
		e.detach(port, handle)
		return nil, err
	}
	logger.Debug("Posted task to port %s with id %s", e.portName, handle.ID)

	go e.watch(sessionCtx, port, handle, h)
	return handle, nil
}

// route hands one inbound envelope to h if it belongs to handle
func (e *ExtensionTransport) route(handle *Handle, h stream.Handler, raw []byte) {
	if id := skill.UniqueID(raw); id != "" && id != handle.ID {
		logger.Debug("Port %s: ignoring message for superseded id %s", e.portName, id)
		return
	}
	select {
	case <-handle.Done():
		return
	default:
	}

	ev, ok := skill.DecodeEnvelope(raw)
	if !ok {
		logger.Debug("Port %s: dropping undecodable message %q", e.portName, raw)
		return
	}

	terminal := false
	handle.deliver(func() { terminal = stream.Dispatch(h, ev) })
	if terminal {
		handle.finish()
	}
}

// watch reports a port that dies before the invocation has finished
func (e *ExtensionTransport) watch(ctx context.Context, port *Port, handle *Handle, h stream.Handler) {
	select {
	case <-port.Done():
		err := port.Err()
		if handle.finish() {
			handle.deliver(func() { h.OnError(fmt.Errorf("%w: %v", ErrPortClosed, err)) })
		}
	case <-handle.Done():
	case <-ctx.Done():
	}
}

// Close posts the shutdown control message and detaches the listener
func (e *ExtensionTransport) Close(handle *Handle) error {
	if handle == nil || !handle.markClosed() {
		return nil
	}

	e.mu.Lock()
	port := e.port
	e.mu.Unlock()

	var postErr error
	if port != nil {
		msg, err := e.controlMessage(taskStatusShutdown, handle.ID)
		if err == nil {
			err = port.Post(msg)
		}
		if err != nil {
			logger.Warn("Failed to post shutdown for %s: %v", handle.ID, err)
			postErr = err
		}
	}

	e.detach(port, handle)
	return postErr
}

func (e *ExtensionTransport) detach(port *Port, handle *Handle) {
	if port != nil {
		port.RemoveListener(handle.ID)
	}
	handle.finish()
	handle.cancel()

	e.mu.Lock()
	if e.current == handle {
		e.current = nil
	}
	e.mu.Unlock()
}

// unbind drops the previous listener and port so the next Open starts clean
func (e *ExtensionTransport) unbind() {
	e.mu.Lock()
	port, current := e.port, e.current
	e.port, e.current = nil, nil
	e.mu.Unlock()

	if current != nil {
		current.markClosed()
		if port != nil {
			port.RemoveListener(current.ID)
		}
		current.finish()
		current.cancel()
	}
	if err := e.ports.Remove(e.portName); err != nil {
		logger.Debug("Removing port %s: %v", e.portName, err)
	}
}

// Shutdown releases every port the transport holds
func (e *ExtensionTransport) Shutdown() {
	e.unbind()
	e.ports.CloseAll()
}

func (e *ExtensionTransport) startMessage(task skill.InvokeRequest, id string) ([]byte, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}
	msg, err := e.controlMessage(taskStatusStart, id)
	if err != nil {
		return nil, err
	}
	msg, err = sjson.SetRawBytes(msg, "body.payload", payload)
	if err != nil {
		return nil, fmt.Errorf("build start message: %w", err)
	}
	return msg, nil
}

func (e *ExtensionTransport) controlMessage(status, id string) ([]byte, error) {
	msg, err := sjson.SetBytes([]byte(`{}`), "body.type", status)
	if err == nil {
		msg, err = sjson.SetBytes(msg, "source", e.source)
	}
	if err == nil {
		msg, err = sjson.SetBytes(msg, "uniqueId", id)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s message: %w", status, err)
	}
	return msg, nil
}

var _ Transport = (*ExtensionTransport)(nil)
