package console

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/killallgit/skillstream/pkg/canvas"
	"github.com/killallgit/skillstream/pkg/chat"
)

// MessagesMsg carries a committed snapshot of the message list
type MessagesMsg struct {
	Messages []chat.Message
}

// CanvasMsg carries text streamed to the editor
type CanvasMsg struct {
	Event   canvas.EventName
	Payload canvas.StreamPayload
}

// DoneMsg reports that the session ended
type DoneMsg struct {
	Err error
}

// Sender is satisfied by *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// TeaBridge forwards store commits and editor events into a bubbletea program
type TeaBridge struct {
	sender Sender
}

// NewTeaBridge creates a bridge that sends to s
func NewTeaBridge(s Sender) *TeaBridge {
	return &TeaBridge{sender: s}
}

// AttachStore forwards every commit of store
func (b *TeaBridge) AttachStore(store *chat.Store) func() {
	return store.Subscribe(func(msgs []chat.Message) {
		b.sender.Send(MessagesMsg{Messages: msgs})
	})
}

// AttachBus forwards canvas stream events of bus
func (b *TeaBridge) AttachBus(bus *canvas.Bus) func() {
	forward := func(name canvas.EventName, p *canvas.StreamPayload) {
		msg := CanvasMsg{Event: name}
		if p != nil {
			msg.Payload = *p
		}
		b.sender.Send(msg)
	}
	offs := []func(){
		bus.On(canvas.StreamCanvasContent, forward),
		bus.On(canvas.StreamEditCanvasContent, forward),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Done reports the end of a session
func (b *TeaBridge) Done(err error) {
	b.sender.Send(DoneMsg{Err: err})
}
