package console

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/killallgit/skillstream/pkg/chat"
)

// Model is a minimal bubbletea view of one streaming conversation
type Model struct {
	styles   *Styles
	messages []chat.Message
	canvas   strings.Builder
	err      error
	done     bool
	stop     func()
}

// NewModel creates a model. stop is called once, from a command goroutine,
// when the user interrupts.
func NewModel(stop func()) *Model {
	return &Model{styles: DefaultStyles(), stop: stop}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessagesMsg:
		m.messages = msg.Messages
	case CanvasMsg:
		m.canvas.WriteString(msg.Payload.Content)
	case DoneMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.done {
				return m, tea.Quit
			}
			m.done = true
			return m, m.stopCmd()
		}
	}
	return m, nil
}

// stopCmd stops the session off the event loop. Shutdown commits the store,
// and the bridge needs the event loop free to deliver that commit.
func (m *Model) stopCmd() tea.Cmd {
	stop := m.stop
	return func() tea.Msg {
		if stop != nil {
			stop()
		}
		return tea.Quit()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	for _, msg := range m.messages {
		switch {
		case msg.IsQuestion():
			b.WriteString(m.styles.Question.Render("> " + msg.Content))
		case msg.IsError():
			b.WriteString(m.styles.Error.Render(msg.Content))
		default:
			if name := msg.SkillMeta.DisplayName; name != "" {
				b.WriteString(m.styles.SkillName.Render("["+name+"]") + "\n")
			}
			for _, l := range msg.Logs {
				b.WriteString(m.styles.Log.Render("  · "+l) + "\n")
			}
			content := msg.Content
			if msg.Pending {
				content += "▌"
			}
			b.WriteString(m.styles.Reply.Render(content))
		}
		b.WriteString("\n")
	}
	if m.canvas.Len() > 0 {
		b.WriteString(m.styles.Status.Render("--- canvas ---") + "\n")
		b.WriteString(m.canvas.String() + "\n")
	}
	if m.err != nil {
		b.WriteString(m.styles.Error.Render("Error: "+m.err.Error()) + "\n")
	}
	if !m.done {
		b.WriteString(m.styles.Status.Render("esc to stop") + "\n")
	}
	return b.String()
}

// Err returns the error the session ended with
func (m *Model) Err() error {
	return m.err
}
