// Package ui is the terminal front end: a login screen and a chat screen rendered from
// chatsync.View updates. All state changes go through the chatsync client; the model only
// mirrors what the client publishes.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/chatsync"
)

const (
	inputPlaceholder = "Type your message..."
	emptyPlaceholder = "Start a conversation"
)

// Chat is the part of *chatsync.Client the UI drives.
type Chat interface {
	Submit(ctx context.Context, raw string) error
	SetInput(ctx context.Context, text string)
	Updates() <-chan chatsync.Update
	View() chatsync.View
}

// Sessions is the part of *auth.SessionManager the UI drives.
type Sessions interface {
	SignUp(ctx context.Context, email, password string) (chat.Identity, error)
	SignIn(ctx context.Context, email, password string) (chat.Identity, error)
	SignOut(ctx context.Context) error
}

type updateMsg chatsync.Update

type updatesClosedMsg struct{}

type authDoneMsg struct {
	op  string
	err error
}

type submitDoneMsg struct {
	text string
	err  error
}

type signOutDoneMsg struct{ err error }

const (
	fieldEmail = iota
	fieldPassword
)

type Model struct {
	ctx      context.Context
	chat     Chat
	sessions Sessions

	view chatsync.View

	email    textinput.Model
	password textinput.Model
	field    int
	authErr  string
	busy     bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	notice   string

	width  int
	height int
}

func NewModel(ctx context.Context, c Chat, sessions Sessions) Model {
	email := textinput.New()
	email.Placeholder = "email"
	email.Prompt = "Email:    "
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.Prompt = "> "
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		ctx:      ctx,
		chat:     c,
		sessions: sessions,
		view:     c.View(),
		email:    email,
		password: password,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.syncFocus()
	m.refreshViewport()
	return m
}

func waitForUpdate(ch <-chan chatsync.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.chat.Updates()), textinput.Blink)
}

func (m Model) loggedIn() bool { return !m.view.Identity.IsNone() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.viewport.Width = ev.Width
		m.viewport.Height = max(3, ev.Height-7)
		m.input.Width = max(10, ev.Width-4)
		m.refreshViewport()
		return m, nil

	case updateMsg:
		return m.applyUpdate(chatsync.Update(ev))

	case updatesClosedMsg:
		log.Debug().Str("component", "ui").Msg("client updates closed")
		return m, tea.Quit

	case authDoneMsg:
		m.busy = false
		if ev.err != nil {
			m.authErr = describeAuthError(ev.err)
			log.Debug().Str("component", "ui").Str("op", ev.op).Err(ev.err).Msg("auth failed")
			return m, nil
		}
		m.authErr = ""
		m.password.SetValue("")
		return m, nil

	case submitDoneMsg:
		if ev.err != nil {
			if !errors.Is(ev.err, chat.ErrEmptyInput) {
				m.notice = ev.err.Error()
			}
			return m, nil
		}
		// keep anything typed while the submission was in flight
		if strings.TrimSpace(m.input.Value()) == strings.TrimSpace(ev.text) {
			m.input.SetValue("")
		}
		m.notice = ""
		return m, nil

	case signOutDoneMsg:
		if ev.err != nil {
			m.notice = ev.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if m.view.Typing != chatsync.TypingPending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd

	case tea.KeyMsg:
		if ev.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.loggedIn() {
			return m.updateChat(ev)
		}
		return m.updateLogin(ev)
	}
	return m, nil
}

func (m Model) applyUpdate(u chatsync.Update) (tea.Model, tea.Cmd) {
	wasPending := m.view.Typing == chatsync.TypingPending
	sessionChanged := m.view.Identity != u.View.Identity
	m.view = u.View
	if u.Notice != nil {
		m.notice = u.Notice.Message()
	}
	if sessionChanged {
		m.notice = ""
		m.input.SetValue("")
		m.authErr = ""
		m.busy = false
	}
	m.syncFocus()
	m.refreshViewport()

	cmds := []tea.Cmd{waitForUpdate(m.chat.Updates())}
	if !wasPending && m.view.Typing == chatsync.TypingPending {
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateLogin(ev tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.field = 1 - m.field
		m.syncFocus()
		return m, nil
	case tea.KeyEnter:
		return m.authenticate("signin")
	case tea.KeyCtrlN:
		return m.authenticate("signup")
	}

	var cmd tea.Cmd
	if m.field == fieldEmail {
		m.email, cmd = m.email.Update(ev)
	} else {
		m.password, cmd = m.password.Update(ev)
	}
	return m, cmd
}

func (m Model) authenticate(op string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.authErr = ""
	email, password := m.email.Value(), m.password.Value()
	ctx, sessions := m.ctx, m.sessions
	return m, func() tea.Msg {
		var err error
		if op == "signup" {
			_, err = sessions.SignUp(ctx, email, password)
		} else {
			_, err = sessions.SignIn(ctx, email, password)
		}
		return authDoneMsg{op: op, err: err}
	}
}

func (m Model) updateChat(ev tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		ctx, c := m.ctx, m.chat
		// one goroutine keeps the buffer mirror ordered before the submission
		return m, func() tea.Msg {
			c.SetInput(ctx, text)
			return submitDoneMsg{text: text, err: c.Submit(ctx, text)}
		}
	case tea.KeyCtrlL:
		ctx, sessions := m.ctx, m.sessions
		return m, func() tea.Msg {
			return signOutDoneMsg{err: sessions.SignOut(ctx)}
		}
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(ev)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(ev)
	return m, cmd
}

func (m *Model) syncFocus() {
	if m.loggedIn() {
		m.email.Blur()
		m.password.Blur()
		m.input.Focus()
		return
	}
	m.input.Blur()
	if m.field == fieldEmail {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.email.Blur()
	}
}

func (m *Model) refreshViewport() {
	if m.view.ShowPlaceholder() {
		m.viewport.SetContent(placeholderStyle.Render(emptyPlaceholder))
		return
	}
	var b strings.Builder
	for i, msg := range m.view.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderMessage(msg, m.viewport.Width))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderMessage(msg chat.Message, width int) string {
	ts := time.UnixMilli(msg.Timestamp).Format("15:04")
	label, style := "You", userStyle
	if msg.IsBot() {
		label, style = "Bot", botStyle
	}
	header := style.Render(label) + " " + timestampStyle.Render(ts)
	body := messageStyle.Width(max(10, width-2)).Render(msg.Text)
	return header + "\n" + body
}

func describeAuthError(err error) string {
	switch {
	case chat.IsAuthReason(err, chat.AuthInvalidCredential):
		return "Wrong email or password."
	case chat.IsAuthReason(err, chat.AuthDuplicateAccount):
		return "An account with this email already exists."
	case chat.IsAuthReason(err, chat.AuthInvalidInput):
		return "Enter a valid email and a password of at least 6 characters."
	case chat.IsAuthReason(err, chat.AuthUnavailable):
		return "The server is unreachable, try again."
	default:
		return err.Error()
	}
}

func (m Model) View() string {
	if m.loggedIn() {
		return m.chatView()
	}
	return m.loginView()
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("chatsync"))
	b.WriteString("\n\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	switch {
	case m.busy:
		b.WriteString(helpStyle.Render("signing in..."))
	case m.authErr != "":
		b.WriteString(errorStyle.Render(m.authErr))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: sign in • ctrl+n: sign up • tab: switch field • esc: quit"))
	return docStyle.Render(b.String())
}

func (m Model) chatView() string {
	var b strings.Builder
	header := titleStyle.Render("chatsync") + " " + helpStyle.Render(fmt.Sprintf("signed in as %s", m.view.Identity))
	if !m.view.Synced {
		header += " " + helpStyle.Render("(syncing)")
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(viewportStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	if m.view.Typing == chatsync.TypingPending {
		b.WriteString(m.spinner.View() + " " + typingStyle.Render("Bot is typing..."))
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • pgup/pgdown: scroll • ctrl+l: log out • ctrl+c: quit"))
	return b.String()
}

// Run drives the model in the terminal until the user quits or ctx is done.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "run ui")
	}
	return nil
}
