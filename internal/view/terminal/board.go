// Package terminal draws the live worker dashboard on a text terminal.
package terminal

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/livestatus"
)

const (
	gaugeWidth     = 30
	logLinesShown  = 5
	clearScreen    = "\x1b[H\x1b[2J"
	defaultRefresh = 500 * time.Millisecond
)

var (
	accent = lipgloss.Color("#50E3C2")
	muted  = lipgloss.Color("#8CA1AE")
	warn   = lipgloss.Color("#FF6B6B")
	good   = lipgloss.Color("#7BD88F")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2D6A80")).
			Padding(0, 1).
			Width(gaugeWidth + 24)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	noticeStyle = lipgloss.NewStyle().Foreground(warn).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(good)
	failStyle   = lipgloss.NewStyle().Foreground(warn)
)

// Board keeps the widget state pushed by a livestatus client and renders it
// as text. It is safe to render from another goroutine.
//
// A Notify banner stays up until the next worker update arrives; fresh
// worker data means the feed is reachable again, so UpsertWorkerWidget
// clears it.
type Board struct {
	mu        sync.Mutex
	workers   map[string]livestatus.WorkerView
	completed []domain.CompletedTaskSummary
	notice    string
	reloads   int
	now       func() time.Time
}

func NewBoard() *Board {
	return &Board{workers: make(map[string]livestatus.WorkerView), now: time.Now}
}

var _ livestatus.Renderer = (*Board)(nil)

// UpsertWorkerWidget shows view under id and clears any notice banner.
func (b *Board) UpsertWorkerWidget(id string, view livestatus.WorkerView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workers[id] = view
	b.notice = ""
}

func (b *Board) RemoveWorkerWidget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.workers, id)
}

func (b *Board) ReplaceCompletedTasks(tasks []domain.CompletedTaskSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append([]domain.CompletedTaskSummary(nil), tasks...)
}

func (b *Board) Notify(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notice = message
}

// Reload drops everything the board shows, as a page reload would.
func (b *Board) Reload() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workers = make(map[string]livestatus.WorkerView)
	b.completed = nil
	b.notice = ""
	b.reloads++
}

// WidgetIDs lists the worker widgets currently shown, in display order.
func (b *Board) WidgetIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedIDs()
}

func (b *Board) Reloads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloads
}

func (b *Board) sortedIDs() []string {
	ids := make([]string, 0, len(b.workers))
	for id := range b.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Board) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sections []string
	sections = append(sections, headerStyle.Render("Workers"))
	if b.notice != "" {
		sections = append(sections, noticeStyle.Render(b.notice))
	}

	ids := b.sortedIDs()
	if len(ids) == 0 {
		sections = append(sections, mutedStyle.Render("No workers connected"))
	}
	cards := make([]string, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, b.renderCard(b.workers[id]))
	}
	if len(cards) > 0 {
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, cards...))
	}

	sections = append(sections, "", headerStyle.Render("Recently completed"))
	if len(b.completed) == 0 {
		sections = append(sections, mutedStyle.Render("Nothing completed yet"))
	}
	for _, t := range b.completed {
		mark := okStyle.Render("✔")
		if !t.Success {
			mark = failStyle.Render("✘")
		}
		sections = append(sections, fmt.Sprintf("%s %s %s", mark, t.Label, mutedStyle.Render(t.HumanReadableTime)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (b *Board) renderCard(v livestatus.WorkerView) string {
	name := v.Name
	if name == "" {
		name = "Worker-" + v.ID
	}
	lines := []string{
		titleStyle.Render(name) + "  " + mutedStyle.Render(v.Subtitle),
		gauge(v.Percent) + " " + v.Indicator,
		mutedStyle.Render(v.State),
	}
	if !v.Idle {
		lines = append(lines, "Runner: "+v.CurrentRunner)
		if !v.StartedAt.IsZero() {
			lines = append(lines, mutedStyle.Render(livestatus.FormatElapsed(b.now().Sub(v.StartedAt))))
		}
		tail := v.LogTail
		if len(tail) > logLinesShown {
			tail = tail[len(tail)-logLinesShown:]
		}
		for _, l := range tail {
			lines = append(lines, mutedStyle.Render(strings.TrimRight(l, "\r\n")))
		}
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func gauge(percent int) string {
	filled := percent * gaugeWidth / 100
	return lipgloss.NewStyle().Foreground(accent).Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", gaugeWidth-filled))
}

// Run redraws the board to w every interval until ctx is done.
func (b *Board) Run(ctx context.Context, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := io.WriteString(w, clearScreen+b.Render()+"\n"); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
