package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tui/components"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func newTable(cols []table.Column) table.Model {
	t := theme.Active
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border).
		BorderBottom(true).
		Foreground(t.Muted).
		Bold(true)
	styles.Cell = styles.Cell.Foreground(t.Text)
	styles.Selected = styles.Selected.
		Foreground(t.Accent).
		Background(t.Highlight).
		Bold(true)

	return table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(styles),
	)
}

func (a *App) resizeTables() {
	h := max(a.height-8, 3)
	cw := a.contentWidth()
	a.sessTable.SetColumns(sessionColumns(sessionsListWidth(cw)))
	a.sessTable.SetHeight(h)
	a.patTable.SetColumns(patternColumns(cw))
	a.patTable.SetHeight(h)
}

func sessionsListWidth(cw int) int {
	return cw * 3 / 5
}

// sessionColumns sizes the class column from whatever width is left.
func sessionColumns(width int) []table.Column {
	cols := []table.Column{
		{Title: "ID", Width: 13},
		{Title: "Started", Width: 12},
		{Title: "Class", Width: 9},
		{Title: "State", Width: 9},
		{Title: "Turns", Width: 5},
		{Title: "Cost", Width: 9},
		{Title: "Retr", Width: 6},
	}
	used := 0
	for _, c := range cols {
		used += c.Width + 2
	}
	if spare := width - 4 - used; spare > 0 {
		cols[3].Width += min(spare, 6)
	}
	return cols
}

func sessionState(s *model.Session) string {
	switch {
	case s.CloseReason == model.CloseRecovered:
		return "recovered"
	case s.IsOpen():
		return "open"
	default:
		return "closed"
	}
}

func sessionRows(sessions []model.Session, now time.Time) []table.Row {
	rows := make([]table.Row, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		state := sessionState(s)
		if s.IsOpen() {
			state = "open " + cli.FormatDuration(s.Duration(now))
		}
		rows[i] = table.Row{
			string(s.ID),
			s.StartedAt.Local().Format("Jan 02 15:04"),
			s.Class.Short(),
			state,
			cli.FormatNumber(int64(len(s.Interactions))),
			cli.FormatCost(s.TotalCost),
			fmt.Sprintf("%.0f%%", s.RetrievalRatio),
		}
	}
	return rows
}

// recentFirst orders sessions by start time, newest first.
func recentFirst(sessions []model.Session) []model.Session {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions
}

func (a App) selectedSession() *model.Session {
	i := a.sessTable.Cursor()
	if i < 0 || i >= len(a.history) {
		return nil
	}
	return &a.history[i]
}

func (a App) renderSessions(cw int) string {
	t := theme.Active
	if len(a.history) == 0 {
		muted := lipgloss.NewStyle().Background(t.Surface).Foreground(t.Muted)
		return components.Panel("Sessions", muted.Render("No sessions yet. Press n to start one."), cw)
	}

	listW := sessionsListWidth(cw)
	detailW := cw - listW
	list := components.Panel(fmt.Sprintf("Sessions (%d)", len(a.history)), a.sessTable.View(), listW)

	s := a.selectedSession()
	if s == nil {
		return list
	}
	return components.Row(list, components.Panel("Session "+string(s.ID), a.sessionDetail(s, detailW), detailW))
}

func (a App) sessionDetail(s *model.Session, outer int) string {
	t := theme.Active
	inner := components.PanelInner(outer)
	bg := lipgloss.NewStyle().Background(t.Surface)
	label := bg.Foreground(t.Muted)
	value := bg.Foreground(t.Text)

	kv := func(k, v string) string {
		return label.Render(fmt.Sprintf("%-13s", k)) + value.Render(v)
	}

	ended := "still open"
	if s.EndedAt != nil {
		ended = cli.FormatTime(*s.EndedAt)
	}
	tok := s.TokenTotals

	lines := []string{
		kv("Class", string(s.Class)),
		kv("Started", cli.FormatTime(s.StartedAt)),
		kv("Ended", ended),
		kv("Duration", cli.FormatDuration(s.Duration(a.now()))),
		kv("Interactions", fmt.Sprintf("%d (%d retrieval)", len(s.Interactions), s.RetrievalCount())),
		kv("Input", cli.FormatTokens(tok.Input)),
		kv("Output", cli.FormatTokens(tok.Output)),
		kv("Thinking", cli.FormatTokens(tok.Thinking)),
		kv("Tool", cli.FormatTokens(tok.Tool)),
		kv("Cost", cli.FormatCost(s.TotalCost)),
		"",
		components.RatioBar("Retrieval", s.RetrievalRatio/100, 12, max(inner-18, 6)),
	}
	if cp := s.Checkpoint; cp != nil {
		lines = append(lines, "",
			kv("Checkpoint", fmt.Sprintf("%d markers, %s", cp.Markers, cli.FormatTokens(cp.Input+cp.Output))),
			kv("Covers", fmt.Sprintf("%d interactions", cp.Covered)),
		)
	}
	if s.CloseNote != "" {
		lines = append(lines, kv("Note", truncate(s.CloseNote, inner-13)))
	}
	if len(s.PatternsUsed) > 0 {
		lines = append(lines, "", label.Render("Patterns"))
		for _, p := range s.PatternsUsed {
			lines = append(lines, value.Render("  "+truncate(p, inner-2)))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
