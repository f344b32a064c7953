package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/goforbroke1006/stagechain"
)

var (
	channelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	toastStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Console renders notifications and toasts as lines on a terminal.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ stagechain.Notifier = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) UpdateStatus(channelID, text string) {
	c.println(channelStyle.Render("["+channelID+"]") + " " + statusStyle.Render(text))
}

func (c *Console) ShowPersistent(channelID, title, text string) {
	c.println(channelStyle.Render("["+channelID+"]") + " " + titleStyle.Render(title) + " " + text)
}

func (c *Console) Clear(channelID string) {
	c.println(channelStyle.Render("["+channelID+"]") + " " + statusStyle.Render("dismissed"))
}

// Toast prints a short-lived user message.
func (c *Console) Toast(msg string) {
	c.println(toastStyle.Render("» " + msg))
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}
