// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/session"
	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

type focus int

const (
	focusInput focus = iota
	focusList
)

// mode is a modal overlay on top of the focused pane.
type mode int

const (
	modeNormal mode = iota
	modeRename
	modeConfirmDelete
	modeConfirmClear
)

const (
	inputHeight = 3

	// header, status bar, input top border
	chromeHeight = 3
)

// =============================================================================
// MESSAGES
// =============================================================================

// changedMsg reports that the controller state moved.
type changedMsg struct{}

// outcomeMsg carries a settled Submit.
type outcomeMsg struct {
	outcome session.Outcome
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures the chat model.
type Options struct {
	Controller *session.Controller
	Theme      *styles.Theme

	// ModelName is shown in the header.
	ModelName string

	// PlainMarkdown shows replies as written instead of rendering them.
	PlainMarkdown bool
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl  *session.Controller
	theme *styles.Theme
	keys  KeyMap

	modelName string
	plain     bool

	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	rename   textinput.Model
	spinner  spinner.Model

	// Markdown rendering, cached per message at rendererWidth.
	renderer      *glamour.TermRenderer
	rendererWidth int
	rendered      map[string]string

	// Latest controller snapshot
	state session.State
	convs []model.Conversation

	cursor int
	focus  focus
	mode   mode
	status string

	// promptIndex walks PrevPrompts backwards; -1 when not recalling.
	promptIndex int
}

// New creates a chat model over ctrl.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask Gemini anything..."
	ta.Prompt = "┃ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j", "alt+enter"))
	ta.Focus()

	ri := textinput.New()
	ri.Prompt = "Rename: "
	ri.CharLimit = 120

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		ctx:         ctx,
		cancel:      cancel,
		ctrl:        opts.Controller,
		theme:       theme,
		keys:        DefaultKeyMap(),
		modelName:   opts.ModelName,
		plain:       opts.PlainMarkdown,
		viewport:    viewport.New(80, 20),
		input:       ta,
		rename:      ri,
		spinner:     sp,
		rendered:    make(map[string]string),
		promptIndex: -1,
	}
	m.refresh()
	m.input.SetValue(m.state.Draft)
	return m
}

// Init starts watching the controller.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, waitForChange(m.ctx, m.ctrl.Changes())}
	if m.state.Loading {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// Close stops background commands.
func (m Model) Close() {
	m.cancel()
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForChange blocks until the controller signals or ctx ends.
func waitForChange(ctx context.Context, changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-changes:
			return changedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// submitCmd runs one Submit to settlement.
func submitCmd(ctx context.Context, ctrl *session.Controller, prompt string) tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg{outcome: ctrl.Submit(ctx, prompt)}
	}
}

// =============================================================================
// STATE SYNC
// =============================================================================

// refresh reloads the controller snapshot and redraws the transcript.
func (m *Model) refresh() {
	m.state = m.ctrl.State()
	m.convs = m.ctrl.Conversations()
	if m.cursor >= len(m.convs) {
		m.cursor = len(m.convs) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.syncViewport()
}

func (m *Model) syncViewport() {
	follow := m.viewport.AtBottom() || m.state.Loading || m.state.Revealing
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

// activeIndex returns the list position of the active conversation.
func (m Model) activeIndex() int {
	for i, c := range m.convs {
		if c.ID == m.state.ActiveConversationID {
			return i
		}
	}
	return 0
}

// selected returns the conversation under the list cursor.
func (m Model) selected() (model.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.convs) {
		return model.Conversation{}, false
	}
	return m.convs[m.cursor], true
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.ready = true

	sw := m.sidebarWidth()
	vw := width - sw
	if sw > 0 {
		vw -= 2 // border + padding
	}
	vh := height - chromeHeight - inputHeight
	if vh < 1 {
		vh = 1
	}

	m.viewport.Width = max(vw, 10)
	m.viewport.Height = vh
	m.input.SetWidth(max(width-2, 10))
	m.rename.Width = max(width-12, 10)

	m.setupRenderer(m.viewport.Width - 4)
	m.syncViewport()
}

func (m Model) sidebarWidth() int {
	return m.theme.SidebarWidth()
}

// setupRenderer rebuilds the markdown renderer for a new wrap width.
func (m *Model) setupRenderer(width int) {
	if m.plain || width == m.rendererWidth {
		return
	}
	style := "dark"
	if !m.theme.IsDark {
		style = "light"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithColorProfile(m.theme.ColorProfile),
		glamour.WithWordWrap(max(width, 20)),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
	m.rendererWidth = width
	m.rendered = make(map[string]string)
}

// renderMarkdown renders a finished reply, caching by message id.
func (m *Model) renderMarkdown(msg model.Message) string {
	if m.renderer == nil {
		return msg.Content
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = trimBlankLines(out)
	m.rendered[msg.ID] = out
	return out
}
