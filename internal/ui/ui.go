package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	AddLinkView
	EditProfileView
	ConfirmDeleteView
	ConnectView
)

const defaultRefresh = 500 * time.Millisecond

// Options configures a [Model].
type Options struct {
	Updates       <-chan tasks.SyncEvent // engine events, optional
	PublicBaseURL string                 // base of the share URL
	Refresh       time.Duration          // snapshot polling interval
}

// Model represents the TUI application state.
type Model struct {
	ctx           context.Context
	engine        *tasks.Engine
	opts          Options
	view          ViewState
	width         int
	height        int
	linkList      list.Model
	shown         models.LinkList
	inputs        []textinput.Model
	focus         int
	pending       *models.Link
	snapshot      tasks.View
	spinner       spinner.Model
	help          help.Model
	keys          keyMap
	status        string
	err           error
	connectCancel context.CancelFunc
}

// NewModel creates a new TUI model driving engine.
func NewModel(ctx context.Context, engine *tasks.Engine, opts Options) *Model {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Links"
	l.SetShowHelp(false)
	l.KeyMap.Quit.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.accent

	m := &Model{
		ctx:      ctx,
		engine:   engine,
		opts:     opts,
		view:     DashboardView,
		linkList: l,
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.setSnapshot(engine.Snapshot())
	return m
}

// Init starts the spinner, snapshot polling and the engine event listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.linkList.SetSize(max(msg.Width-4, 20), max(msg.Height-14, 5))
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case AddLinkView, EditProfileView:
			return m.handleFormKeys(msg)
		case ConfirmDeleteView:
			return m.handleConfirmKeys(msg)
		case ConnectView:
			return m.handleConnectKeys(msg)
		default:
			return m.handleDashboardKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.linkList, cmd = m.linkList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		m.setSnapshot(m.engine.Snapshot())
		return m, m.tick()

	case MsgSyncEvent:
		ev := msg.data.(tasks.SyncEvent)
		m.status = ev.Message
		m.setSnapshot(m.engine.Snapshot())
		return m, m.waitForEvent()

	case MsgOperationDone:
		res := msg.data.(operationResult)
		m.err = res.err
		if res.err == nil {
			m.status = res.status
		}
		m.setSnapshot(m.engine.Snapshot())
		return m, nil

	case MsgAuthURL:
		res := msg.data.(authURLResult)
		if res.err != nil {
			m.err = res.err
			m.view = DashboardView
			return m, nil
		}
		m.view = ConnectView
		m.status = "Waiting for approval..."
		m.setSnapshot(m.engine.Snapshot())
		return m, m.awaitConnect()

	case MsgConnected:
		if m.connectCancel != nil {
			m.connectCancel()
			m.connectCancel = nil
		}
		m.view = DashboardView
		if err, _ := msg.data.(error); err != nil {
			if errors.Is(err, context.Canceled) {
				m.status = "Connection cancelled"
			} else {
				m.err = err
			}
		} else {
			m.err = nil
			m.status = "Connected"
		}
		m.setSnapshot(m.engine.Snapshot())
		return m, nil
	}
	return m, nil
}

func (m *Model) setSnapshot(v tasks.View) {
	m.snapshot = v
	if !slices.Equal(m.shown, v.Links) {
		m.shown = v.Links
		m.linkList.SetItems(linkItems(v.Links))
	}
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.linkList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.linkList, cmd = m.linkList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.add):
		m.openForm(AddLinkView, []string{"Title", "https://example.com"}, nil)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.edit):
		p := m.snapshot.Profile
		m.openForm(EditProfileView, []string{"Name", "Bio", "Avatar URL"}, []string{p.Name, p.Bio, p.AvatarURL})
		return m, textinput.Blink
	case key.Matches(msg, m.keys.remove):
		if item, ok := m.linkList.SelectedItem().(linkItem); ok {
			link := item.link
			m.pending = &link
			m.view = ConfirmDeleteView
		}
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m, m.run("Synced to homeserver", func(ctx context.Context) error {
			return m.engine.Sync(ctx)
		})
	case key.Matches(msg, m.keys.importKey):
		return m, m.importSocial()
	case key.Matches(msg, m.keys.connect):
		return m, m.startConnect()
	case key.Matches(msg, m.keys.disconnect):
		return m, m.run("Disconnected", m.engine.Disconnect)
	case key.Matches(msg, m.keys.reload):
		return m, m.run("Reloaded", func(ctx context.Context) error {
			m.engine.Load(ctx)
			return nil
		})
	}

	var cmd tea.Cmd
	m.linkList, cmd = m.linkList.Update(msg)
	return m, cmd
}

func (m *Model) openForm(view ViewState, placeholders, values []string) {
	m.inputs = make([]textinput.Model, len(placeholders))
	for i, ph := range placeholders {
		in := textinput.New()
		in.Placeholder = ph
		in.CharLimit = 256
		in.Width = 48
		if i < len(values) {
			in.SetValue(values[i])
		}
		m.inputs[i] = in
	}
	m.focus = 0
	m.inputs[0].Focus()
	m.err = nil
	m.view = view
}

func (m *Model) setFocus(i int) {
	m.inputs[m.focus].Blur()
	m.focus = (i + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focus].Focus()
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		m.inputs = nil
		return m, nil
	case key.Matches(msg, m.keys.next):
		m.setFocus(m.focus + 1)
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.setFocus(m.focus - 1)
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if m.focus < len(m.inputs)-1 {
			m.setFocus(m.focus + 1)
			return m, nil
		}
		return m.submitForm()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) submitForm() (tea.Model, tea.Cmd) {
	switch m.view {
	case AddLinkView:
		link, ok := m.engine.AddLink(m.ctx, m.inputs[0].Value(), m.inputs[1].Value())
		if !ok {
			m.err = fmt.Errorf("%w: title and URL are required", shared.ErrInvalidInput)
			return m, nil
		}
		m.status = fmt.Sprintf("Added %s", link.URL)

	case EditProfileView:
		name := strings.TrimSpace(m.inputs[0].Value())
		if name == "" {
			m.err = fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
			return m, nil
		}
		m.engine.EditProfile(m.ctx, models.Profile{
			Name:           name,
			Bio:            m.inputs[1].Value(),
			AvatarURL:      m.inputs[2].Value(),
			PubkyAvatarURL: m.snapshot.Profile.PubkyAvatarURL,
		})
		m.status = "Profile saved"
	}

	m.err = nil
	m.inputs = nil
	m.view = DashboardView
	m.setSnapshot(m.engine.Snapshot())
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		if m.pending != nil && m.engine.DeleteLink(m.ctx, m.pending.ID) {
			m.status = fmt.Sprintf("Deleted %s", m.pending.Title)
		}
		m.pending = nil
		m.view = DashboardView
		m.setSnapshot(m.engine.Snapshot())
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.pending = nil
		m.view = DashboardView
	}
	return m, nil
}

func (m *Model) handleConnectKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.back) || key.Matches(msg, m.keys.quit) {
		if m.connectCancel != nil {
			m.connectCancel()
		}
	}
	return m, nil
}

// run executes op off the update loop and reports its outcome.
func (m *Model) run(status string, op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return operationDoneMsg(status, op(m.ctx))
	}
}

func (m *Model) importSocial() tea.Cmd {
	return func() tea.Msg {
		social := m.engine.Social()
		if social == nil {
			social = m.engine.FetchSocial(m.ctx)
		}
		if !m.engine.ImportSocial(m.ctx, social) {
			return operationDoneMsg("Nothing to import", nil)
		}
		return operationDoneMsg("Imported profile from Nexus", nil)
	}
}

func (m *Model) startConnect() tea.Cmd {
	return func() tea.Msg {
		url, err := m.engine.StartConnect(m.ctx)
		return authURLMsg(url, err)
	}
}

func (m *Model) awaitConnect() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.connectCancel = cancel
	return func() tea.Msg {
		return connectedMsg(m.engine.AwaitConnect(ctx))
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.opts.Updates == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.opts.Updates
		if !ok {
			return nil
		}
		return syncEventMsg(ev)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case AddLinkView:
		return m.renderForm("Add Link")
	case EditProfileView:
		return m.renderForm("Edit Profile")
	case ConfirmDeleteView:
		return m.renderConfirm()
	case ConnectView:
		return m.renderConnect()
	default:
		return m.renderDashboard()
	}
}

func (m *Model) renderStatus() string {
	v := m.snapshot
	var b strings.Builder

	switch v.Session {
	case tasks.Connected:
		b.WriteString(styles.ok.Render("● Connected"))
		b.WriteString(" " + styles.help.Render(shortKey(v.Sync.PublicKey)))
	case tasks.Authenticating:
		b.WriteString(styles.warn.Render("● Waiting for approval"))
	default:
		b.WriteString(styles.help.Render("○ Local only"))
	}

	if v.Sync.Syncing() {
		b.WriteString("  " + m.spinner.View() + " syncing")
	} else if v.Sync.LastSync != nil {
		b.WriteString(styles.help.Render("  last sync " + v.Sync.LastSync.Local().Format("15:04:05")))
	}
	if v.InitError != nil {
		b.WriteString("\n" + styles.err.Render(v.InitError.Error()))
	}
	return b.String()
}

func (m *Model) renderProfile() string {
	p := m.snapshot.Profile
	lines := []string{styles.title.UnsetMarginBottom().Render(orDefault(p.Name, "Unnamed"))}
	if p.Bio != "" {
		lines = append(lines, p.Bio)
	}
	if s := m.snapshot.Social; s != nil {
		c := s.Counts
		lines = append(lines, styles.accent.Render(fmt.Sprintf("%d followers · %d following · %d posts", c.Followers, c.Following, c.Posts)))
	}
	if m.snapshot.Session == tasks.Connected && m.opts.PublicBaseURL != "" {
		lines = append(lines, styles.help.Render(shared.ShareURL(m.opts.PublicBaseURL, m.snapshot.Sync.PublicKey)))
	}
	return styles.card.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderFooter() string {
	var line string
	switch {
	case m.err != nil:
		line = styles.err.Render("Error: " + m.err.Error())
	case m.snapshot.Error != "":
		line = styles.warn.Render(m.snapshot.Error)
	case m.status != "":
		line = styles.accent.Render(m.status)
	}
	return line
}

func (m *Model) renderDashboard() string {
	title := styles.title.Render("✨ PubkyTree")
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s\n%s\n\n%s",
		title, m.renderStatus(), m.renderProfile(), m.linkList.View(), m.renderFooter(), m.help.View(m.keys))
}

func (m *Model) renderForm(heading string) string {
	var b strings.Builder
	b.WriteString(styles.title.Render(heading) + "\n")
	for i := range m.inputs {
		b.WriteString(m.inputs[i].View() + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + styles.err.Render(m.err.Error()) + "\n")
	}
	helpKeys := []key.Binding{m.keys.next, m.keys.enter, m.keys.back}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderConfirm() string {
	if m.pending == nil {
		return ""
	}
	title := styles.title.Render(fmt.Sprintf("Delete '%s'?", m.pending.Title))
	info := fmt.Sprintf("\n%s\n", m.pending.URL)
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConnect() string {
	url := m.snapshot.AuthURL
	title := styles.title.Render("Connect with Pubky Ring")
	body := fmt.Sprintf("%s Approve this request with your signer:\n\n%s\n\nQR code: %s",
		m.spinner.View(), styles.accent.Render(url), styles.help.Render(shared.QRCodeURL(url)))
	helpKeys := []key.Binding{m.keys.back}
	return fmt.Sprintf("%s\n%s\n\n%s", title, body, m.help.ShortHelpView(helpKeys))
}

func shortKey(k string) string {
	if len(k) <= 16 {
		return k
	}
	return k[:8] + "…" + k[len(k)-8:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
