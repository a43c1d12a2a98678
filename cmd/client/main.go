package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/peopledesk/peopledesk/internal/client/api"
	"github.com/peopledesk/peopledesk/internal/client/auth"
	"github.com/peopledesk/peopledesk/internal/client/chat"
	"github.com/peopledesk/peopledesk/internal/client/config"
	"github.com/peopledesk/peopledesk/internal/client/logging"
	"github.com/peopledesk/peopledesk/internal/client/notify"
	"github.com/peopledesk/peopledesk/internal/client/realtime"
	"github.com/peopledesk/peopledesk/internal/client/session"
	"github.com/peopledesk/peopledesk/internal/client/transport"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#2563EB")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View State ---

type viewState int

const (
	viewLogin viewState = iota
	viewConversations
	viewChat
)

// --- App wiring ---

// app bundles the client core; the bubbletea model stays a thin view
// over it.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	creds    *auth.Store
	api      *api.Client
	store    *chat.Store
	counters *notify.Counters
	monitor  *session.Monitor
	channel  *realtime.Channel
}

func (a *app) shutdown() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.channel != nil {
		a.channel.Close()
	}
}

// --- Messages ---

type loggedInMsg struct{ user *auth.Profile }
type loginFailedMsg struct{ err error }
type sidebarMsg struct{ convs []chat.ConversationSummary }
type historyMsg struct{ otherID int }
type channelOpenMsg struct{ ch *realtime.Channel }
type storeChangedMsg struct{}
type countsMsg struct{}
type sessionExpiredMsg struct{ warning bool }
type errMsg struct{ err error }

// --- Main Model ---

type model struct {
	app     *app
	program func() *tea.Program

	// Login
	emailInput    textinput.Model
	passwordInput textinput.Model
	loginFocused  int // 0=email, 1=password
	loginError    string

	// Conversations
	selectedConv int
	currentOther int
	currentName  string

	// Chat
	messageInput textinput.Model
	chatViewport viewport.Model
	sendError    string

	// UI
	view       viewState
	width      int
	height     int
	notice     string
	fatalError error
}

func initialModel(a *app, program func() *tea.Program) model {
	emailInput := textinput.New()
	emailInput.Placeholder = "Email"
	emailInput.Focus()
	emailInput.CharLimit = 64
	emailInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 1000
	messageInput.Width = 50

	return model{
		app:           a,
		program:       program,
		emailInput:    emailInput,
		passwordInput: passwordInput,
		messageInput:  messageInput,
		chatViewport:  viewport.New(80, 20),
		view:          viewLogin,
	}
}

// --- Commands ---

func (m model) loginCmd(email, password string) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		res, err := a.api.Login(context.Background(), email, password)
		if err != nil {
			return loginFailedMsg{err: err}
		}
		a.creds.Save()
		a.store.SetSelf(res.User.ID)
		return loggedInMsg{user: res.User}
	}
}

// resumeCmd validates a restored credential before using it.
func (m model) resumeCmd() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		if err := a.api.SessionStatus(context.Background()); err != nil {
			a.creds.Clear()
			return nil
		}
		user := a.creds.Profile()
		if user == nil {
			a.creds.Clear()
			return nil
		}
		a.store.SetSelf(user.ID)
		return loggedInMsg{user: user}
	}
}

func (m model) connectCmd() tea.Cmd {
	a := m.app
	program := m.program
	return func() tea.Msg {
		ch := realtime.New(a.cfg.WebsocketURL, a.creds.Token(),
			realtime.WithHeartbeatInterval(a.cfg.HeartbeatInterval),
			realtime.WithLogger(a.log),
		)
		ch.SetHandler(func(payload json.RawMessage) {
			a.store.HandleFrame(payload)
			if p := program(); p != nil {
				p.Send(storeChangedMsg{})
			}
		})
		if err := ch.Connect(context.Background()); err != nil {
			return errMsg{err: err}
		}
		a.store.RegisterSender(func(msg chat.Message) error {
			return ch.Send(msg)
		})
		return channelOpenMsg{ch: ch}
	}
}

func (m model) sidebarCmd() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		convs, err := a.api.Sidebar(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		a.store.SetConversations(convs)
		return sidebarMsg{convs: convs}
	}
}

func (m model) historyCmd(otherID int) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		a.store.Clear()
		msgs, err := a.api.History(context.Background(), otherID)
		if err != nil {
			return errMsg{err: err}
		}
		for _, msg := range msgs {
			a.store.AddMessage(msg)
		}
		a.api.MarkRead(context.Background(), otherID)
		return historyMsg{otherID: otherID}
	}
}

func (m model) countsCmd() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		counts, err := a.api.NotificationCounts(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		a.counters.Replace(counts)
		return countsMsg{}
	}
}

func (m model) sendCmd(otherID int, content string) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		self := a.store.Self()
		err := a.store.Send(chat.Message{
			SenderID:   self,
			ReceiverID: otherID,
			Content:    content,
			Timestamp:  time.Now().UTC(),
		})
		if err != nil {
			return errMsg{err: fmt.Errorf("message not sent: %w", err)}
		}
		return nil
	}
}

// --- Init ---

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.app.creds.Token() != "" {
		cmds = append(cmds, m.resumeCmd())
	}
	return tea.Batch(cmds...)
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.app.shutdown()
			return m, tea.Quit

		case "q":
			if m.view == viewLogin || m.view == viewConversations {
				m.app.shutdown()
				return m, tea.Quit
			}

		case "tab":
			if m.view == viewLogin {
				if m.loginFocused == 0 {
					m.loginFocused = 1
					m.emailInput.Blur()
					m.passwordInput.Focus()
				} else {
					m.loginFocused = 0
					m.passwordInput.Blur()
					m.emailInput.Focus()
				}
			}

		case "enter":
			switch m.view {
			case viewLogin:
				if m.emailInput.Value() != "" && m.passwordInput.Value() != "" {
					return m, m.loginCmd(m.emailInput.Value(), m.passwordInput.Value())
				}

			case viewConversations:
				convs := m.app.store.Conversations()
				if len(convs) > 0 && m.selectedConv < len(convs) {
					conv := convs[m.selectedConv]
					m.currentOther = conv.OtherUserID
					m.currentName = conv.OtherUserName
					m.view = viewChat
					m.sendError = ""
					m.messageInput.Focus()
					return m, m.historyCmd(conv.OtherUserID)
				}

			case viewChat:
				if m.messageInput.Value() != "" {
					content := m.messageInput.Value()
					m.messageInput.SetValue("")
					return m, m.sendCmd(m.currentOther, content)
				}
			}

		case "up", "k":
			if m.view == viewConversations && m.selectedConv > 0 {
				m.selectedConv--
			}

		case "down", "j":
			if m.view == viewConversations && m.selectedConv < len(m.app.store.Conversations())-1 {
				m.selectedConv++
			}

		case "r":
			if m.view == viewConversations {
				return m, tea.Batch(m.sidebarCmd(), m.countsCmd())
			}

		case "esc":
			if m.view == viewChat {
				m.view = viewConversations
				return m, m.sidebarCmd()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = msg.Height - 8

	case loggedInMsg:
		m.view = viewConversations
		m.loginError = ""
		m.app.monitor.Start()
		return m, tea.Batch(m.connectCmd(), m.sidebarCmd(), m.countsCmd())

	case loginFailedMsg:
		m.loginError = msg.err.Error()

	case channelOpenMsg:
		m.app.channel = msg.ch

	case sidebarMsg:
		if m.selectedConv >= len(msg.convs) {
			m.selectedConv = 0
		}

	case historyMsg:
		if msg.otherID == m.currentOther {
			m.updateChatViewport()
		}

	case storeChangedMsg:
		if m.view == viewChat {
			m.updateChatViewport()
		} else {
			m.app.counters.Increment(notify.CategoryMessages)
		}

	case countsMsg:
		// counters already updated; re-render only

	case sessionExpiredMsg:
		m.app.shutdown()
		m.view = viewLogin
		m.notice = "Your session has expired. Please sign in again."
		m.emailInput.Focus()

	case errMsg:
		if m.view == viewChat {
			m.sendError = msg.err.Error()
		} else {
			m.notice = msg.err.Error()
		}
	}

	// Update text inputs
	switch m.view {
	case viewLogin:
		if m.loginFocused == 0 {
			m.emailInput, _ = m.emailInput.Update(msg)
		} else {
			m.passwordInput, _ = m.passwordInput.Update(msg)
		}
	case viewChat:
		m.messageInput, _ = m.messageInput.Update(msg)
		m.chatViewport, _ = m.chatViewport.Update(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) updateChatViewport() {
	self := m.app.store.Self()
	var content strings.Builder
	for _, msg := range m.app.store.Messages(m.currentOther) {
		timestamp := msg.Timestamp.Local().Format("15:04")
		style := otherMessageStyle
		name := m.currentName
		if msg.SenderID == self {
			style = ownMessageStyle
			name = "me"
		}
		line := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(timestamp),
			style.Render(name),
			msg.Content,
		)
		content.WriteString(line + "\n")
	}
	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// --- View ---

func (m model) View() string {
	if m.fatalError != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.fatalError))
	}

	switch m.view {
	case viewLogin:
		return m.loginView()
	case viewConversations:
		return m.conversationsView()
	case viewChat:
		return m.chatView()
	}
	return ""
}

func (m model) loginView() string {
	var s strings.Builder

	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render("PEOPLEDESK"))
	s.WriteString("\n\n")

	if m.notice != "" {
		s.WriteString(mutedStyle.Render("  " + m.notice + "\n\n"))
	}

	s.WriteString("  Email:\n")
	s.WriteString("  " + m.emailInput.View() + "\n\n")
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.loginError != "" {
		s.WriteString(errorStyle.Render("  " + m.loginError + "\n\n"))
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to sign in • q to quit\n"))
	return s.String()
}

func (m model) conversationsView() string {
	var s strings.Builder

	header := "PEOPLEDESK"
	if user := m.app.creds.Profile(); user != nil {
		header = fmt.Sprintf("PEOPLEDESK - %s", user.Name)
	}
	if total := m.app.counters.Total(); total > 0 {
		header += fmt.Sprintf("  (%d unread)", total)
	}
	s.WriteString(titleStyle.Render(header))
	s.WriteString("\n\n")

	convs := m.app.store.Conversations()
	if len(convs) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
	} else {
		for i, conv := range convs {
			prefix := "  "
			style := lipgloss.NewStyle()
			if i == m.selectedConv {
				prefix = "→ "
				style = selectedStyle
			}

			dot := " "
			if conv.Online {
				dot = "●"
			}
			label := conv.OtherUserName
			if conv.UnreadCount > 0 {
				label = fmt.Sprintf("%s (%d)", label, conv.UnreadCount)
			}

			s.WriteString(style.Render(fmt.Sprintf("%s%s %s\n", prefix, dot, label)))
			s.WriteString(mutedStyle.Render(fmt.Sprintf("     %s\n", truncate(conv.LastMessage, 60))))
		}
	}

	if m.notice != "" {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("  " + m.notice))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • r to refresh • q to quit"))
	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.currentName))
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")
	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")
	if m.sendError != "" {
		s.WriteString(errorStyle.Render(m.sendError))
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("Enter to send • Esc to go back"))
	return s.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// --- Main ---

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	dir := auth.GetConfigDir(cfg.Profile)
	log := logging.New(dir, cfg.Debug)
	defer log.Sync()

	creds := auth.New(dir)
	creds.Load()

	var program *tea.Program
	getProgram := func() *tea.Program { return program }

	notifyExpired := func() {
		if p := getProgram(); p != nil {
			p.Send(sessionExpiredMsg{})
		}
	}

	tr := transport.New(transport.Options{
		Creds:            creds,
		Logger:           log,
		Timeout:          cfg.RequestTimeout,
		LogoutPath:       api.LogoutPath,
		OnSessionExpired: notifyExpired,
	})

	a := &app{
		cfg:      cfg,
		log:      log,
		creds:    creds,
		api:      api.New(tr, creds, cfg.ServerURL),
		store:    chat.NewStore(log),
		counters: notify.NewCounters(),
	}
	a.monitor = session.New(session.Options{
		Transport: tr,
		Creds:     creds,
		StatusURL: cfg.ServerURL + api.SessionPath,
		Interval:  cfg.PollInterval,
		Logger:    log,
		OnExpired: func() {
			if p := getProgram(); p != nil {
				p.Send(sessionExpiredMsg{warning: true})
			}
		},
	})

	program = tea.NewProgram(initialModel(a, getProgram), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	a.shutdown()
}
