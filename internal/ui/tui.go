package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws build progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newBuildModel(tracker, cfg.Service)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var runCtx context.Context
	runCtx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(runCtx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)
	r.send(progressMsg(event))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(errorMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.Apply(ProgressEvent{Stage: StageComplete})
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}
	r.program.Quit()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// a TUI that ignores Quit must not hang the process
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// buildModel is the bubbletea model of one index build.
type buildModel struct {
	tracker  *ProgressTracker
	service  string
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newBuildModel(tracker *ProgressTracker, service string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &buildModel{
		tracker: tracker,
		service: service,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 20
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressMsg, errorMsg:
		// the tracker already holds the state

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := m.contentWidth()
	stats := m.tracker.Stats()

	sections := []string{
		m.renderStages(stats.Stage),
		m.styles.Border.Render(strings.Repeat("─", width)),
		m.renderProgress(stats),
		m.renderRate(stats),
	}
	if stats.Key != "" {
		sections = append(sections, m.styles.Dim.Render(truncate(stats.Key, width-2)))
	}

	title := "constellation index"
	if m.service != "" {
		title += " • " + m.service
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar(stats)
}

func (m *buildModel) contentWidth() int {
	if w := m.width - 4; w >= 40 {
		return w
	}
	return 40
}

func (m *buildModel) renderStages(current Stage) string {
	stages := []Stage{StageCatalogs, StageRecords, StagePromote}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) renderProgress(stats ProgressStats) string {
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}

	bar := m.bar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	count := m.styles.Label.Render(fmt.Sprintf("catalog %s (%d/%d)  •  %d / %d records",
		stats.Catalog, stats.CatalogIndex, stats.Catalogs, stats.Current, stats.Total))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *buildModel) renderRate(stats ProgressStats) string {
	parts := []string{m.styles.Label.Render(fmt.Sprintf("%d records  •  %.0f/s", stats.Records, stats.Rate))}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *buildModel) renderStatusBar(stats ProgressStats) string {
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d records failed", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *buildModel) renderComplete() string {
	label := m.styles.Label.Render
	value := m.styles.Active.Render

	lines := []string{
		m.styles.Success.Render("✓ Index built"),
		"",
		fmt.Sprintf("%s  %s", label("Service: "), value(m.stats.Service)),
		fmt.Sprintf("%s  %s", label("Catalogs:"), value(fmt.Sprintf("%d", m.stats.Catalogs))),
		fmt.Sprintf("%s  %s", label("Records: "), value(fmt.Sprintf("%d", m.stats.Indexed))),
		fmt.Sprintf("%s  %s", label("Duration:"), value(formatDuration(m.stats.Duration))),
	}
	if m.stats.Failed > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d records failed", m.stats.Failed)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(m.contentWidth()).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration as 42s, 3m 5s or 1h 2m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncate keeps the tail of s, which holds the distinguishing part of a
// record key.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 4 {
		return "..."
	}
	return "..." + s[len(s)-max+3:]
}

var _ Renderer = (*TUIRenderer)(nil)
