package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/killallgit/skillstream/pkg/logger"
)

// Listener receives every inbound message of a port
type Listener func(raw []byte)

// Port is a long-lived bidirectional message channel backed by a websocket
type Port struct {
	Name string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.RWMutex
	listeners map[string]Listener
	order     []string

	done    chan struct{}
	errOnce sync.Once
	err     error
}

func newPort(name string, conn *websocket.Conn) *Port {
	p := &Port{
		Name:      name,
		conn:      conn,
		listeners: make(map[string]Listener),
		done:      make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// AddListener registers l under key, replacing any listener already there
func (p *Port) AddListener(key string, l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[key]; !ok {
		p.order = append(p.order, key)
	}
	p.listeners[key] = l
}

// RemoveListener drops the listener under key. Unknown keys are ignored.
func (p *Port) RemoveListener(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[key]; !ok {
		return
	}
	delete(p.listeners, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// HasListener reports whether key is registered
func (p *Port) HasListener(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.listeners[key]
	return ok
}

// Post writes one text message to the port
func (p *Port) Post(msg []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("post to port %s: %w", p.Name, ErrPortClosed)
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("post to port %s: %w", p.Name, err)
	}
	return nil
}

// Done is closed when the port stops receiving
func (p *Port) Done() <-chan struct{} {
	return p.done
}

// Err returns why the port stopped, once Done is closed
func (p *Port) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Close shuts the underlying connection down
func (p *Port) Close() error {
	p.writeMu.Lock()
	_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.writeMu.Unlock()
	return p.conn.Close()
}

func (p *Port) readLoop() {
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Port %s closed unexpectedly: %v", p.Name, err)
			}
			p.stop(err)
			return
		}

		p.mu.RLock()
		ls := make([]Listener, 0, len(p.order))
		for _, key := range p.order {
			ls = append(ls, p.listeners[key])
		}
		p.mu.RUnlock()

		for _, l := range ls {
			l(message)
		}
	}
}

func (p *Port) stop(err error) {
	p.errOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

// PortManager hands out named ports and re-acquires them once they go stale
type PortManager struct {
	baseURL string
	dialer  *websocket.Dialer

	mu    sync.Mutex
	ports map[string]*Port
}

// NewPortManager creates a manager that dials ports under baseURL
func NewPortManager(baseURL string) *PortManager {
	return &PortManager{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		ports:   make(map[string]*Port),
	}
}

// Get returns the live port called name, dialing a new one if needed
func (m *PortManager) Get(ctx context.Context, name string) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.ports[name]; ok {
		select {
		case <-p.Done():
			logger.Debug("Port %s is stale, re-acquiring", name)
			delete(m.ports, name)
		default:
			return p, nil
		}
	}

	target, err := m.portURL(name)
	if err != nil {
		return nil, err
	}
	conn, _, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial port %s: %w", name, err)
	}

	p := newPort(name, conn)
	m.ports[name] = p
	logger.Debug("Acquired port %s at %s", name, target)
	return p, nil
}

// Remove closes and forgets the port called name. Unknown names are ignored.
func (m *PortManager) Remove(name string) error {
	m.mu.Lock()
	p, ok := m.ports[name]
	delete(m.ports, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return p.Close()
}

// CloseAll closes every port
func (m *PortManager) CloseAll() {
	m.mu.Lock()
	ports := m.ports
	m.ports = make(map[string]*Port)
	m.mu.Unlock()

	for _, p := range ports {
		_ = p.Close()
	}
}

func (m *PortManager) portURL(name string) (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse port url: %w", err)
	}
	u = u.JoinPath(name)
	return u.String(), nil
}
