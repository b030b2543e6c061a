// Package tui is a read-only terminal browser over analyzed sessions: a
// session list that drills down into the session's scenes and their
// descriptions. It renders what the store holds and runs no pipeline logic.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
)

type viewMode int

const (
	sessionView viewMode = iota
	sceneView
)

// entry is one session row joined with its video.
type entry struct {
	session    models.Session
	videoPath  string
	sceneCount int
}

type browser struct {
	store *storage.Store

	entries       []entry
	mode          viewMode
	sessionCursor int
	sceneCursor   int
	selected      *entry
	scenes        []models.Scene
	viewport      viewport.Model
	ready         bool
	err           error
}

func newBrowser(store *storage.Store) (*browser, error) {
	sessions, err := store.Sessions()
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(sessions))
	for _, sess := range sessions {
		e := entry{session: sess}
		if v, err := store.Video(sess.VideoID); err == nil {
			e.videoPath = v.FilePath
		}
		if scenes, err := store.ScenesForSession(sess.ID); err == nil {
			e.sceneCount = len(scenes)
		}
		entries = append(entries, e)
	}
	return &browser{store: store, entries: entries}, nil
}

func (b *browser) Init() tea.Cmd {
	return nil
}

func (b *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 4
		footerHeight := 2
		if !b.ready {
			b.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			b.viewport.YPosition = headerHeight
			b.ready = true
		} else {
			b.viewport.Width = msg.Width
			b.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		b.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return b, tea.Quit

		case "esc":
			if b.mode == sceneView {
				b.mode = sessionView
				b.sceneCursor = 0
				b.refresh()
				b.viewport.GotoTop()
			}

		case "up", "k":
			b.moveCursor(-1)

		case "down", "j":
			b.moveCursor(1)

		case "enter":
			if b.mode == sessionView && b.sessionCursor < len(b.entries) {
				b.selected = &b.entries[b.sessionCursor]
				scenes, err := b.store.ScenesForSession(b.selected.session.ID)
				if err != nil {
					b.err = err
					return b, nil
				}
				b.scenes = scenes
				b.mode = sceneView
				b.sceneCursor = 0
				b.refresh()
				b.viewport.GotoTop()
			}

		default:
			b.viewport, cmd = b.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	b.viewport, cmd = b.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return b, tea.Batch(cmds...)
}

func (b *browser) moveCursor(delta int) {
	switch b.mode {
	case sessionView:
		next := b.sessionCursor + delta
		if next >= 0 && next < len(b.entries) {
			b.sessionCursor = next
		}
	case sceneView:
		next := b.sceneCursor + delta
		if next >= 0 && next < len(b.scenes) {
			b.sceneCursor = next
		}
	}
	b.refresh()
	b.scrollToCursor()
}

func (b *browser) refresh() {
	if !b.ready {
		return
	}
	switch b.mode {
	case sessionView:
		b.viewport.SetContent(b.renderSessions())
	case sceneView:
		b.viewport.SetContent(b.renderScenes())
	}
}

func (b *browser) scrollToCursor() {
	linesPerItem := 1
	line := b.sessionCursor
	if b.mode == sceneView {
		linesPerItem = 3
		line = b.sceneCursor * linesPerItem
	}
	if line < b.viewport.YOffset {
		b.viewport.SetYOffset(line)
	} else if line > b.viewport.YOffset+b.viewport.Height-linesPerItem {
		b.viewport.SetYOffset(line - b.viewport.Height + linesPerItem)
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Background(lipgloss.Color("237"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginLeft(4)
)

func (b *browser) View() string {
	if b.err != nil {
		return fmt.Sprintf("Error: %v\n", b.err)
	}
	if !b.ready {
		return "\n  Loading..."
	}

	var header string
	switch b.mode {
	case sessionView:
		header = titleStyle.Render("Scene Analyzer - Sessions")
	case sceneView:
		header = titleStyle.Render("Scene Analyzer - Scenes") + "\n" +
			subtitleStyle.Render(fmt.Sprintf("%s (%s)", b.selected.session.Name, filepath.Base(b.selected.videoPath)))
	}

	var footer string
	switch b.mode {
	case sessionView:
		footer = helpStyle.Render("↑/k: up • ↓/j: down • enter: open • q: quit")
	case sceneView:
		footer = helpStyle.Render("↑/k: up • ↓/j: down • esc: back • q: quit")
	}

	return fmt.Sprintf("%s\n\n%s\n%s", header, b.viewport.View(), footer)
}

func (b *browser) renderSessions() string {
	if len(b.entries) == 0 {
		return "No sessions yet. Run `sceneanalyzer analyze <video>` first."
	}

	var sb strings.Builder
	for i, e := range b.entries {
		line := fmt.Sprintf("%-30s %-24s %3d scenes  %s",
			truncate(e.session.Name, 30),
			truncate(filepath.Base(e.videoPath), 24),
			e.sceneCount,
			e.session.CreatedAt.Local().Format("2006-01-02 15:04"))

		if i == b.sessionCursor {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString(normalStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *browser) renderScenes() string {
	if len(b.scenes) == 0 {
		return "No scenes in this session."
	}

	var sb strings.Builder
	for i, sc := range b.scenes {
		line := fmt.Sprintf("%8.2fs  +%6.2fs", sc.Timestamp, sc.Duration)
		if i == b.sceneCursor {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString(normalStyle.Render("  " + line))
		}
		sb.WriteString("\n")

		desc := sc.Description
		if desc == "" {
			desc = "(not analyzed)"
		}
		sb.WriteString(detailStyle.Render(truncate(desc, 100)))
		sb.WriteString("\n\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Browse opens the interactive session browser.
func Browse(store *storage.Store) error {
	b, err := newBrowser(store)
	if err != nil {
		return err
	}
	p := tea.NewProgram(b, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
