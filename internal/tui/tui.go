package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
)

// TUIModel represents the Bubble Tea model for a blackjack table
type TUIModel struct {
	logger *log.Logger
	player string

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State
	gameLog      []string
	actionResult chan ActionResult
	quitting     bool
	focusedPane  int // 0 = log, 1 = input

	// Room as last seen on the wire, nil when not seated
	room *game.Snapshot

	// Dimensions
	width       int
	height      int
	initialized bool // Track if viewport has been properly sized

	// Test mode
	testMode    bool
	capturedLog []string // For test assertions
}

// ActionResult represents the result of a user action
type ActionResult struct {
	Action   string
	Args     []string
	Continue bool
	Error    error
}

// QuitMsg is a custom message to signal quit
type QuitMsg struct{}

// RoomStateMsg carries a fresh snapshot of the player's room
type RoomStateMsg struct {
	Room game.Snapshot
}

// RoundSettledMsg reports the outcomes of a finished round
type RoundSettledMsg struct {
	Data server.RoundSettledData
}

// RoomClosedMsg reports that the player's room is gone
type RoomClosedMsg struct {
	Data server.RoomClosedData
}

// RoomListMsg carries the lobby listing
type RoomListMsg struct {
	Rooms []server.RoomInfo
}

// LogMsg appends a line to the game log
type LogMsg struct {
	Text string
	Bold bool
}

// ErrorMsg reports a failed command
type ErrorMsg struct {
	Err error
}

// NewTUIModel creates a new TUI model for player
func NewTUIModel(logger *log.Logger, player string) *TUIModel {
	return NewTUIModelWithOptions(logger, player, false)
}

// NewTUIModelWithOptions creates a new TUI model with test mode option
func NewTUIModelWithOptions(logger *log.Logger, player string, testMode bool) *TUIModel {
	// Will be properly sized when WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "Type a command (help for a list)"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &TUIModel{
		logger:       logger.WithPrefix("tui"),
		player:       player,
		logViewport:  vp,
		actionInput:  ti,
		gameLog:      []string{},
		actionResult: make(chan ActionResult, 1),
		focusedPane:  1, // Start with input focused
		testMode:     testMode,
		capturedLog:  []string{},
	}
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case QuitMsg:
		m.quitting = true
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case RoomStateMsg:
		if m.room != nil && msg.Room.OlderThan(*m.room) {
			m.logger.Debug("Dropping stale room state", "room", msg.Room.RoomID, "version", msg.Room.Version, "have", m.room.Version)
			break
		}
		m.applyRoom(msg.Room)

	case RoundSettledMsg:
		if m.room != nil && msg.Data.Room.OlderThan(*m.room) {
			break
		}
		m.room = &msg.Data.Room
		m.AddBoldLogEntry(fmt.Sprintf("Round %d settled", msg.Data.Round))
		for _, p := range msg.Data.Room.Players {
			if outcome, ok := msg.Data.Outcomes[p.ID]; ok {
				m.AddLogEntry(fmt.Sprintf("  %s: %s (%d) purse %d", p.ID, formatOutcome(outcome), p.Score, p.Purse))
			}
		}
		m.AddLogEntry(fmt.Sprintf("  dealer: %s (%d)", formatCards(msg.Data.Room.Dealer.Cards), msg.Data.Room.Dealer.Score))

	case RoomClosedMsg:
		if m.room != nil && m.room.RoomID == msg.Data.RoomID {
			m.room = nil
		}
		m.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Room %s closed: %s", msg.Data.RoomID, msg.Data.Reason)))

	case RoomListMsg:
		if len(msg.Rooms) == 0 {
			m.AddLogEntry("No rooms open")
			break
		}
		m.AddLogEntry("Open rooms:")
		for _, r := range msg.Rooms {
			m.AddLogEntry(fmt.Sprintf("  %s: %d/%d players, %s, host %s", r.ID, r.Players, r.MaxPlayers, r.Status, r.HostID))
		}

	case LogMsg:
		if msg.Bold {
			m.AddBoldLogEntry(msg.Text)
		} else {
			m.AddLogEntry(msg.Text)
		}

	case ErrorMsg:
		m.AddLogEntry(ErrorStyle.Render("Error: " + msg.Err.Error()))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			m.sendAction(ActionResult{Action: "quit", Continue: false})
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				m.processAction(strings.TrimSpace(m.actionInput.Value()))
				m.actionInput.SetValue("")
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// applyRoom stores a snapshot and logs what changed since the last one
func (m *TUIModel) applyRoom(snap game.Snapshot) {
	prev := m.room
	m.room = &snap

	if prev == nil || prev.RoomID != snap.RoomID {
		m.AddBoldLogEntry(fmt.Sprintf("Room %s (%d/%d players)", snap.RoomID, len(snap.Players), snap.MaxPlayers))
		return
	}
	if prev.Status != snap.Status {
		m.AddLogEntry(InfoStyle.Render(fmt.Sprintf("Round %d: %s", snap.Round, snap.Status)))
	}
	if snap.Status == game.StatusPlayerTurns && snap.Turn == m.player && prev.Turn != m.player {
		if me, ok := snap.Player(m.player); ok {
			m.AddLogEntry(HandInfoStyle.Render(fmt.Sprintf("Your turn: %s (%d) against %s", formatCards(me.Hand), me.Score, formatCards(snap.Dealer.Cards))))
		}
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)

	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight-2, 1))
	if m.focusedPane == 1 {
		actionStyle = actionStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	actionPane := actionStyle.Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 28)
	paneHeight := max(m.height-actionHeight-4, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.SetContent(m.renderLogPane())
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight

	// On first proper sizing, reset to top to avoid starting scrolled down
	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoTop()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(logWidth).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *TUIModel) renderLogPane() string {
	return strings.Join(m.gameLog, "\n")
}

// renderSidebarPane shows the dealer and every seat at the table
func (m *TUIModel) renderSidebarPane() string {
	if m.room == nil {
		return InfoStyle.Render("Not seated.\nTry: list, create, join <room>")
	}
	r := m.room

	var content strings.Builder
	content.WriteString(HeaderStyle.Render(fmt.Sprintf(" %s ", r.RoomID)))
	content.WriteString(fmt.Sprintf("\nRound %d · %s\n\n", r.Round, r.Status))

	dealer := formatCards(r.Dealer.Cards)
	if r.Dealer.HiddenCards > 0 {
		dealer += strings.Repeat(" ??", r.Dealer.HiddenCards)
	}
	content.WriteString(fmt.Sprintf("Dealer %s", dealer))
	if len(r.Dealer.Cards) > 0 {
		content.WriteString(fmt.Sprintf(" (%d)", r.Dealer.Score))
	}
	content.WriteString("\n\n")

	for _, p := range r.Players {
		marker := "  "
		if p.ID == r.Turn {
			marker = "▶ "
		}
		name := p.ID
		if p.ID == m.player {
			name = SuccessStyle.Render(p.ID)
		}
		if p.ID == r.HostID {
			name += "*"
		}
		content.WriteString(fmt.Sprintf("%s%s $%d", marker, name, p.Purse))
		if p.Bet > 0 {
			content.WriteString(WarningStyle.Render(fmt.Sprintf(" bet %d", p.Bet)))
		}
		content.WriteString("\n")
		if len(p.Hand) > 0 {
			content.WriteString(fmt.Sprintf("    %s (%d) %s\n", formatCards(p.Hand), p.Score, p.Status))
		}
	}

	return content.String()
}

// renderActionPane shows the commands that make sense right now
func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	content.WriteString(ActionsStyle.Render("Actions: " + strings.Join(m.availableActions(), " ")))
	content.WriteString("\n")
	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))
	return content.String()
}

func (m *TUIModel) availableActions() []string {
	if m.room == nil {
		return []string{"[list]", "[create]", "[join <room>]"}
	}

	switch m.room.Status {
	case game.StatusPreGame:
		actions := []string{"[leave]"}
		if m.room.HostID == m.player {
			actions = append([]string{"[start]"}, append(actions, "[close]")...)
		}
		return actions
	case game.StatusBetting:
		return []string{"[bet <amount>]", "[deal]"}
	case game.StatusPlayerTurns:
		if m.room.Turn == m.player {
			return []string{SuccessStyle.Render("[hit]"), SuccessStyle.Render("[stand]")}
		}
		return []string{fmt.Sprintf("waiting for %s", m.room.Turn)}
	case game.StatusDealerTurn:
		return []string{"[dealer]"}
	case game.StatusSettlement:
		return []string{"[settle]"}
	default:
		return []string{"[list]"}
	}
}

// AddLogEntry adds an entry to the game log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)

	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
		return // Skip UI updates in test mode
	}

	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// AddBoldLogEntry adds a bold entry to the game log
func (m *TUIModel) AddBoldLogEntry(entry string) {
	if m.testMode {
		m.gameLog = append(m.gameLog, entry)
		m.capturedLog = append(m.capturedLog, entry)
		return
	}
	m.AddLogEntry(lipgloss.NewStyle().Bold(true).Render(entry))
}

// Room returns the last snapshot seen, if any
func (m *TUIModel) Room() (game.Snapshot, bool) {
	if m.room == nil {
		return game.Snapshot{}, false
	}
	return *m.room, true
}

// processAction splits the input line and hands it to the command handler
func (m *TUIModel) processAction(input string) {
	parts := strings.Fields(strings.ToLower(input))
	if len(parts) == 0 {
		return
	}
	m.sendAction(ActionResult{
		Action:   parts[0],
		Args:     parts[1:],
		Continue: true,
	})
}

func (m *TUIModel) sendAction(result ActionResult) {
	select {
	case m.actionResult <- result:
	default:
		m.logger.Warn("Dropping input, previous command still running", "action", result.Action)
	}
}

// WaitForAction waits for user input (for use by the command handler)
func (m *TUIModel) WaitForAction() (string, []string, bool, error) {
	result := <-m.actionResult
	return result.Action, result.Args, result.Continue, result.Error
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *TUIModel) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// InjectAction programmatically injects an action (test mode only)
func (m *TUIModel) InjectAction(action string, args []string) error {
	if !m.testMode {
		return fmt.Errorf("action injection only available in test mode")
	}

	select {
	case m.actionResult <- ActionResult{Action: action, Args: args, Continue: true}:
		return nil
	default:
		return fmt.Errorf("action channel full")
	}
}

// IsTestMode returns whether the TUI is in test mode
func (m *TUIModel) IsTestMode() bool {
	return m.testMode
}

// formatCards formats cards with colors
func formatCards(cards []deck.Card) string {
	if len(cards) == 0 {
		return "[]"
	}

	formatted := make([]string, len(cards))
	for i, card := range cards {
		if card.Suit.IsRed() {
			formatted[i] = RedCardStyle.Render(card.String())
		} else {
			formatted[i] = BlackCardStyle.Render(card.String())
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

func formatOutcome(o game.Outcome) string {
	switch o {
	case game.OutcomeWin, game.OutcomeBlackjackWin:
		return SuccessStyle.Render(o.String())
	case game.OutcomePush:
		return WarningStyle.Render(o.String())
	default:
		return ErrorStyle.Render(o.String())
	}
}
