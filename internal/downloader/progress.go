package downloader

import (
	"fmt"
	"sync"
	"time"

	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg time.Time
type statusMsg string
type progressMsg Progress

type progressModel struct {
	progress progress.Model
	title    string
	status   string
	received int64
	total    int64
	done     bool
	mu       sync.Mutex
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, tea.Quit
		}
		return m, tickCmd()
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case progressMsg:
		m.mu.Lock()
		m.received, m.total = msg.Received, msg.Total
		if msg.Status != "" {
			m.status = msg.Status
		}
		frac := Progress(msg).Fraction()
		m.mu.Unlock()
		if frac > 0 {
			return m, m.progress.SetPercent(frac)
		}
		return m, nil
	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		m.progress = newModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.status
	if status == "" && m.total > 0 {
		status = fmt.Sprintf("%.1f%%", float64(m.received)/float64(m.total)*100)
	}
	size := fmt.Sprintf("%.1f MB", float64(m.received)/(1024*1024))
	if m.total > 0 {
		size += fmt.Sprintf(" / %.1f MB", float64(m.total)/(1024*1024))
	}

	return fmt.Sprintf("%s\n%s\n%s  %s\n\n%s\n",
		util.TitleStyle.Render(m.title),
		m.progress.View(),
		size,
		util.MutedStyle.Render(status),
		util.MutedStyle.Render("Press Ctrl+C to cancel"))
}

// runWithProgressBar runs fn while a bubbletea progress bar renders the
// reports it sends
func runWithProgressBar(title string, fn func(report ProgressFunc) error) error {
	m := &progressModel{
		progress: progress.New(progress.WithDefaultGradient()),
		title:    title,
	}
	p := tea.NewProgram(m)

	finished := make(chan error, 1)
	go func() {
		err := fn(func(pr Progress) {
			p.Send(progressMsg(pr))
		})
		if err == nil {
			p.Send(statusMsg("Download completed!"))
		} else {
			p.Send(statusMsg(fmt.Sprintf("Download failed: %v", err)))
		}
		time.Sleep(300 * time.Millisecond)
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		p.Quit()
		finished <- err
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("progress display error: %w", err)
	}
	return <-finished
}
