// Package console prints a streaming conversation to a terminal.
package console

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/skill"
)

// Printer writes store commits to a terminal as they arrive. Reply content is
// streamed as deltas unless markdown is enabled, in which case each reply is
// rendered once it is no longer pending.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	styles   *Styles
	markdown *MarkdownRenderer
	showLogs bool

	// per message: printed content, logs and whether it is finished
	printed  map[string]string
	logs     map[string]int
	finished map[string]bool
	headed   map[string]bool
	content  strings.Builder
}

// NewPrinter creates a printer writing to out
func NewPrinter(out io.Writer, cfg config.ConsoleConfig) (*Printer, error) {
	p := &Printer{
		out:      out,
		styles:   DefaultStyles(),
		showLogs: cfg.ShowLogs,
		printed:  make(map[string]string),
		logs:     make(map[string]int),
		finished: make(map[string]bool),
		headed:   make(map[string]bool),
	}
	if cfg.Markdown {
		r, err := NewMarkdownRenderer(cfg.Style, 0)
		if err != nil {
			return nil, err
		}
		p.markdown = r
	}
	return p, nil
}

// Attach subscribes the printer to store commits
func (p *Printer) Attach(store *chat.Store) func() {
	return store.Subscribe(p.OnCommit)
}

// OnCommit prints whatever changed since the previous commit
func (p *Printer) OnCommit(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		if !m.IsAI() || p.finished[m.MsgID] {
			continue
		}
		p.printLogsLocked(m)

		if p.markdown == nil {
			p.printDeltaLocked(m)
		}
		if !m.Pending {
			p.finishLocked(m)
		}
	}
}

func (p *Printer) headerLocked(m chat.Message) {
	if p.headed[m.MsgID] {
		return
	}
	p.headed[m.MsgID] = true
	name := m.SkillMeta.DisplayName
	if name == "" {
		name = m.SkillMeta.TplName
	}
	if name == "" {
		return
	}
	fmt.Fprintln(p.out, p.styles.SkillName.Render("["+name+"]"))
}

func (p *Printer) printLogsLocked(m chat.Message) {
	if !p.showLogs {
		p.logs[m.MsgID] = len(m.Logs)
		return
	}
	for _, line := range m.Logs[p.logs[m.MsgID]:] {
		p.headerLocked(m)
		fmt.Fprintln(p.out, p.styles.Log.Render("  · "+line))
	}
	p.logs[m.MsgID] = len(m.Logs)
}

// partialCitation matches a citation marker cut off at the end of a chunk,
// which the next chunk may rewrite into a [citation](n) link
var partialCitation = regexp.MustCompile(`\[\[?(?:[cC](?:i(?:t(?:a(?:t(?:i(?:o(?:n(?::\d*)?)?)?)?)?)?)?)?)?$`)

// stablePrefix is the part of a pending reply that later chunks cannot rewrite
func stablePrefix(m chat.Message) string {
	if !m.Pending {
		return m.Content
	}
	if loc := partialCitation.FindStringIndex(m.Content); loc != nil {
		return m.Content[:loc[0]]
	}
	return m.Content
}

// printDeltaLocked prints content past what was already written
func (p *Printer) printDeltaLocked(m chat.Message) {
	content := stablePrefix(m)
	prev := p.printed[m.MsgID]
	start := len(prev)
	if !strings.HasPrefix(content, prev) {
		start = commonPrefixLen(prev, content)
		logger.Debug("Reply %s rewritten behind the cursor, resuming at byte %d", m.MsgID, start)
	}
	if len(content) <= start {
		return
	}
	p.headerLocked(m)
	delta := content[start:]
	fmt.Fprint(p.out, delta)
	p.content.WriteString(delta)
	p.printed[m.MsgID] = content
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func (p *Printer) finishLocked(m chat.Message) {
	p.finished[m.MsgID] = true
	if m.IsEmpty() {
		return
	}
	if p.markdown != nil {
		p.headerLocked(m)
		fmt.Fprint(p.out, p.markdown.Render(m.Content))
		p.content.WriteString(m.Content)
		return
	}
	fmt.Fprintln(p.out)
}

// Notify prints a failure
func (p *Printer) Notify(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.styles.Error.Render("Error: "+err.Error()))
}

// PrintUsage writes the token usage of the given replies
func (p *Printer) PrintUsage(msgs []chat.Message) {
	var in, out int
	for _, m := range msgs {
		for _, u := range m.TokenUsage {
			in += u.InputTokens
			out += u.OutputTokens
		}
	}
	if in == 0 && out == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.styles.Usage.Render(FormatUsage(in, out)))
}

// PrintSources lists the sources attached to the given replies
func (p *Printer) PrintSources(msgs []chat.Message) {
	var lines []string
	for _, m := range msgs {
		sources, _ := m.StructuredData[skill.KeySources].([]any)
		for _, s := range sources {
			src, ok := s.(map[string]any)
			if !ok {
				continue
			}
			title, _ := src["title"].(string)
			url, _ := src["url"].(string)
			switch {
			case title != "" && url != "":
				lines = append(lines, fmt.Sprintf("%s <%s>", title, url))
			case url != "":
				lines = append(lines, url)
			case title != "":
				lines = append(lines, title)
			}
		}
	}
	if len(lines) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.styles.Status.Render("Sources:"))
	for i, l := range lines {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, l)
	}
}

// Content returns everything printed as reply text
func (p *Printer) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content.String()
}

// FormatUsage is the one-line token summary
func FormatUsage(sent, recv int) string {
	return fmt.Sprintf("[Tokens - Sent: %d, Received: %d, Total: %d]", sent, recv, sent+recv)
}
