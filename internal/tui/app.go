// Package tui provides the interactive Bubble Tea dashboard for costledger.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/store"
	"github.com/theirongolddev/costledger/internal/tui/components"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const (
	tabOverview = iota
	tabSessions
	tabPatterns
	tabDaily
)

const (
	minTerminalWidth = 80
	maxContentWidth  = 160
	eventBuffer      = 64
	dailyWindowDays  = 14
	recentIngests    = 8
)

var zeroTime time.Time

// eventMsg carries one engine event into the update loop.
type eventMsg engine.Event

type eventsClosedMsg struct{}

type tickMsg time.Time

// actionMsg reports the outcome of a key-triggered engine call.
type actionMsg struct {
	notice string
	err    error
}

// App is the root Bubble Tea model.
type App struct {
	eng    *engine.Engine
	cfg    config.Config
	events <-chan engine.Event
	unsub  func()
	now    func() time.Time

	// Refreshed from the engine after every event.
	ledger  *model.Ledger
	status  model.Status
	cmp     model.Comparison
	hasCmp  bool
	roi     []model.PatternUsage
	history []model.Session // newest first
	ingests []store.IngestRecord

	class       model.SessionClass
	lastEvent   string
	lastEventAt time.Time
	notice      string

	width     int
	height    int
	activeTab int
	showHelp  bool

	sessTable table.Model
	patTable  table.Model
	spinner   spinner.Model

	setupForm *huh.Form
	setupVals *SetupValues
}

// NewApp builds the dashboard over an opened engine. firstRun shows the
// setup form before anything else.
func NewApp(eng *engine.Engine, cfg config.Config, firstRun bool) App {
	events, unsub := eng.Subscribe(eventBuffer)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	a := App{
		eng:       eng,
		cfg:       cfg,
		events:    events,
		unsub:     unsub,
		now:       time.Now,
		class:     model.ParseClass(cfg.Ingest.DefaultClass),
		spinner:   sp,
		sessTable: newTable(sessionColumns(maxContentWidth)),
		patTable:  newTable(patternColumns(maxContentWidth)),
	}
	if firstRun {
		a.openSetup()
	}
	a.refresh()
	if rep := eng.Recovery(); rep.Changed() {
		a.notice = fmt.Sprintf("closed abandoned session %s", rep.SessionID)
	}
	return a
}

// WithNotice returns a copy of a showing msg in the status line.
func (a App) WithNotice(msg string) App {
	if msg != "" {
		a.notice = msg
	}
	return a
}

// Close stops the engine subscription.
func (a App) Close() {
	if a.unsub != nil {
		a.unsub()
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		waitForEvent(a.events),
		a.spinner.Tick,
		tickCmd(),
	}
	if a.setupForm != nil {
		cmds = append(cmds, a.setupForm.Init())
	}
	return tea.Batch(cmds...)
}

func waitForEvent(ch <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) refresh() {
	a.ledger = a.eng.Snapshot()
	a.status = a.eng.Status()
	a.cmp, a.hasCmp = a.eng.Comparative()
	a.roi = a.eng.PatternROI()
	a.history = recentFirst(a.ledger.All())
	a.ingests, _ = a.eng.RecentIngests(recentIngests)
	a.sessTable.SetRows(sessionRows(a.history, a.now()))
	a.patTable.SetRows(patternRows(a.roi))
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resizeTables()
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		return a, nil

	case eventMsg:
		a.lastEvent = msg.Message
		a.lastEventAt = msg.At
		a.refresh()
		return a, waitForEvent(a.events)

	case eventsClosedMsg:
		return a, nil

	case tickMsg:
		// Re-render so open-session durations advance.
		a.sessTable.SetRows(sessionRows(a.history, a.now()))
		return a, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case actionMsg:
		if msg.err != nil {
			a.notice = "error: " + msg.err.Error()
		} else {
			a.notice = msg.notice
		}
		a.refresh()
		return a, nil

	case tea.MouseMsg:
		return a.updateMouse(msg)

	case tea.KeyMsg:
		return a.updateKey(msg)
	}

	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}
	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	switch key {
	case "q":
		return a, tea.Quit
	case "t":
		a.class = nextClass(a.class)
		a.notice = "new sessions: " + string(a.class)
		return a, nil
	case "n":
		return a, a.startCmd()
	case "e":
		return a, a.endCmd()
	case "x":
		return a, a.exportCmd()
	case "r":
		a.refresh()
		a.notice = "refreshed"
		return a, nil
	case "c":
		a.openSetup()
		return a, a.setupForm.Init()
	case "tab", "right":
		a.activeTab = (a.activeTab + 1) % len(components.Tabs)
		return a, nil
	case "shift+tab", "left":
		a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
		return a, nil
	}

	if len(msg.Runes) == 1 {
		if idx := components.TabIdxByKey(msg.Runes[0]); idx >= 0 {
			a.activeTab = idx
			return a, nil
		}
	}

	var cmd tea.Cmd
	switch a.activeTab {
	case tabSessions:
		a.sessTable, cmd = a.sessTable.Update(msg)
	case tabPatterns:
		a.patTable, cmd = a.patTable.Update(msg)
	}
	return a, cmd
}

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if a.setupForm != nil || a.showHelp {
		return a, nil
	}
	switch msg.Button {
	case tea.MouseButtonLeft:
		if msg.Action == tea.MouseActionPress && msg.Y == 0 {
			if idx := components.TabAtX(msg.X); idx >= 0 {
				a.activeTab = idx
			}
		}
	case tea.MouseButtonWheelUp:
		a.scroll(-1)
	case tea.MouseButtonWheelDown:
		a.scroll(1)
	}
	return a, nil
}

func (a *App) scroll(delta int) {
	t := &a.sessTable
	if a.activeTab == tabPatterns {
		t = &a.patTable
	} else if a.activeTab != tabSessions {
		return
	}
	if delta < 0 {
		t.MoveUp(-delta)
	} else {
		t.MoveDown(delta)
	}
}

func (a App) startCmd() tea.Cmd {
	eng, class := a.eng, a.class
	return func() tea.Msg {
		s := eng.StartSession(class)
		return actionMsg{notice: fmt.Sprintf("started %s session %s", class.Short(), s.ID)}
	}
}

func (a App) endCmd() tea.Cmd {
	eng := a.eng
	return func() tea.Msg {
		s := eng.EndSession()
		if s == nil {
			return actionMsg{notice: "no session to end"}
		}
		return actionMsg{notice: fmt.Sprintf("ended %s at %s", s.ID, cli.FormatCost(s.TotalCost))}
	}
}

func (a App) exportCmd() tea.Cmd {
	eng, dir := a.eng, config.ExportDir(a.cfg)
	return func() tea.Msg {
		path, err := eng.Export(dir)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{notice: "exported to " + path}
	}
}

func (a *App) openSetup() {
	vals := SetupValuesFrom(a.cfg)
	a.setupVals = &vals
	a.setupForm = NewSetupForm(a.setupVals)
	if a.width > 0 {
		a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
	}
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.setupForm = nil
		cfg, err := a.setupVals.Apply(a.cfg)
		if err == nil {
			err = config.Save(cfg)
		}
		if err != nil {
			a.notice = "config not saved: " + err.Error()
			return a, nil
		}
		a.cfg = cfg
		a.class = model.ParseClass(cfg.Ingest.DefaultClass)
		theme.SetActive(cfg.Appearance.Theme)
		a.notice = "config saved; directory changes apply on next start"
		return a, nil
	case huh.StateAborted:
		a.setupForm = nil
		a.notice = "setup cancelled"
		return a, nil
	}
	return a, cmd
}

func nextClass(c model.SessionClass) model.SessionClass {
	switch c {
	case model.ClassMixed:
		return model.ClassRetrieval
	case model.ClassRetrieval:
		return model.ClassBaseline
	default:
		return model.ClassMixed
	}
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  costledger needs at least %d columns.\n",
			a.width, minTerminalWidth)
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewMain() string {
	t := theme.Active
	cw := a.contentWidth()

	var body string
	switch a.activeTab {
	case tabSessions:
		body = a.renderSessions(cw)
	case tabPatterns:
		body = a.renderPatterns(cw)
	case tabDaily:
		body = a.renderDaily(cw)
	default:
		body = a.renderOverview(cw)
	}

	header := components.RenderTabBar(a.activeTab, a.width)
	footer := components.RenderStatusBar(a.width, a.hints(), a.footerRight())

	bodyH := max(a.height-lipgloss.Height(header)-lipgloss.Height(footer), 1)
	body = padHeight(truncateHeight(body, bodyH), bodyH)

	page := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	return lipgloss.NewStyle().Background(t.Background).Render(page)
}

func (a App) hints() []components.Hint {
	hints := []components.Hint{
		{Key: "n", Desc: "start"},
		{Key: "e", Desc: "end"},
		{Key: "t", Desc: "class:" + a.class.Short()},
		{Key: "x", Desc: "export"},
		{Key: "c", Desc: "setup"},
		{Key: "?", Desc: "help"},
		{Key: "q", Desc: "quit"},
	}
	if a.width < 110 {
		return hints[:3]
	}
	return hints
}

func (a App) footerRight() string {
	if a.notice != "" {
		return a.notice
	}
	if a.lastEvent != "" {
		return a.lastEvent + " " + cli.FormatTime(a.lastEventAt)
	}
	return a.eng.LedgerPath()
}

func (a App) viewHelp() string {
	t := theme.Active
	rows := [][2]string{
		{"1-4, tab", "switch view"},
		{"n", "start a session of the selected class"},
		{"e", "end the open session"},
		{"t", "cycle the class used for new sessions"},
		{"x", "export ledger and analyses to JSON"},
		{"r", "reload from the engine"},
		{"c", "edit configuration"},
		{"j/k, wheel", "move through tables"},
		{"q", "quit"},
	}
	bg := lipgloss.NewStyle().Background(t.Surface)
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(bg.Foreground(t.Accent).Bold(true).Render(fmt.Sprintf("%-12s", r[0])))
		b.WriteString(bg.Foreground(t.Text).Render(r[1]))
		b.WriteString("\n")
	}
	card := components.Panel("Keys", strings.TrimRight(b.String(), "\n"), 60)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card,
		lipgloss.WithWhitespaceBackground(t.Background))
}

func truncateHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= h {
		return s
	}
	return strings.Join(lines[:h], "\n")
}

func padHeight(s string, h int) string {
	n := lipgloss.Height(s)
	if n >= h {
		return s
	}
	return s + strings.Repeat("\n", h-n)
}
