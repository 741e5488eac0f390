package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/keyforge/pkg/pipeline"
)

var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	barFailStyle  = lipgloss.NewStyle().Foreground(colorRed)
)

const barWidth = 30

// =============================================================================
// Messages
// =============================================================================

type progressMsg pipeline.Progress

type batchDoneMsg struct {
	res *pipeline.Result
	err error
}

// =============================================================================
// BatchModel - live progress for a running batch
// =============================================================================

// BatchModel is the bubbletea model shown while a batch runs.
type BatchModel struct {
	Title    string
	Total    int
	Done     int
	Failed   int
	Last     string
	Result   *pipeline.Result
	Err      error
	Aborted  bool
	finished bool
	width    int
}

// NewBatchModel creates a progress model for total keycaps.
func NewBatchModel(title string, total int) BatchModel {
	return BatchModel{Title: title, Total: total, width: barWidth}
}

func (m BatchModel) Init() tea.Cmd {
	return nil
}

func (m BatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Aborted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = min(barWidth, max(10, msg.Width-40))
	case progressMsg:
		m.Done = msg.Done
		if msg.Total > 0 {
			m.Total = msg.Total
		}
		if msg.Err != nil {
			m.Failed++
		}
		m.Last = string(msg.ID)
	case batchDoneMsg:
		m.Result, m.Err = msg.res, msg.err
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m BatchModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("  ")
	b.WriteString(renderBar(m.Done, m.Failed, m.Total, m.width))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d/%d", m.Done, m.Total)))
	if m.Failed > 0 {
		b.WriteString("  " + barFailStyle.Render(fmt.Sprintf("%s %d", iconError, m.Failed)))
	}
	if m.Last != "" {
		b.WriteString(StyleDim.Render("  " + iconInfo + " " + m.Last))
	}
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderBar draws a progress bar where failed items are shown in red
// after the successful ones.
func renderBar(done, failed, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	done = min(done, total)
	failed = min(failed, done)
	ok := (done - failed) * width / total
	bad := done*width/total - ok
	rest := width - ok - bad
	return barFullStyle.Render(strings.Repeat("█", ok)) +
		barFailStyle.Render(strings.Repeat("█", bad)) +
		barEmptyStyle.Render(strings.Repeat("░", rest))
}

// runWithProgress executes req while showing a live progress bar. Quitting
// the view cancels the batch; keycaps already started still finish.
func runWithProgress(ctx context.Context, runner *pipeline.Runner, req pipeline.Request, opts ...tea.ProgramOption) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewBatchModel("Generating", len(req.Keycaps)), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	req.OnProgress = func(pr pipeline.Progress) { p.Send(progressMsg(pr)) }

	results := make(chan batchDoneMsg, 1)
	go func() {
		res, err := runner.Execute(ctx, req)
		msg := batchDoneMsg{res: res, err: err}
		results <- msg
		p.Send(msg)
	}()

	// A failing view must not lose the batch, so its error is dropped.
	final, _ := p.Run()
	if m, ok := final.(BatchModel); ok && m.Aborted {
		cancel()
	}
	out := <-results
	return out.res, out.err
}
