package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/agin/internal/downloads"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/queue"
)

// Tab is the visible pane of the TUI.
type Tab int

const (
	DownloadsTab Tab = iota
	QueueTab
)

func (t Tab) String() string {
	if t == QueueTab {
		return "Queue"
	}
	return "Downloads"
}

// Downloads is the part of [downloads.Coordinator] the TUI drives.
type Downloads interface {
	Snapshot() downloads.Snapshot
	Subscribe(func(downloads.Snapshot)) func()
	PauseDownload(ctx context.Context, downloadID string) error
	ResumeDownload(ctx context.Context, downloadID string) error
	CancelDownload(ctx context.Context, downloadID string) error
	RetryDownload(ctx context.Context, downloadID string) error
	DeleteTrack(ctx context.Context, trackID string) error
	DeleteAll(ctx context.Context) error
}

// Queue is the part of [queue.Coordinator] the TUI drives.
type Queue interface {
	Snapshot() queue.Snapshot
	Subscribe(func(queue.Snapshot)) func()
	JumpTo(index int) error
	SkipForward() error
	SkipBackward() error
	CycleRepeatMode() error
	ToggleStar(ctx context.Context) error
	ClearConfirm(ctx context.Context, opts queue.ClearOptions) (bool, error)
}

// Options configures a [Model].
type Options struct {
	Downloads Downloads
	Queue     Queue
	Notices   <-chan notify.Notice
	Confirmer *Confirmer
	Tab       Tab
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	tab       Tab
	downloads Downloads
	queue     Queue
	dl        downloads.Snapshot
	q         queue.Snapshot
	dlList    list.Model
	queueList list.Model
	bar       progress.Model
	dlFeed    chan downloads.Snapshot
	queueFeed chan queue.Snapshot
	notices   <-chan notify.Notice
	confirmer *Confirmer
	confirm   *confirmRequest
	notice    *notify.Notice
	err       error
	width     int
	height    int
	help      help.Model
	keys      keyMap
	unsub     []func()
}

// NewModel creates a TUI model and subscribes it to both coordinators.
//
// Call [Model.Close] once the program exits to drop the subscriptions.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:       ctx,
		tab:       opts.Tab,
		downloads: opts.Downloads,
		queue:     opts.Queue,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(20), progress.WithoutPercentage()),
		dlFeed:    make(chan downloads.Snapshot, 1),
		queueFeed: make(chan queue.Snapshot, 1),
		notices:   opts.Notices,
		confirmer: opts.Confirmer,
		help:      help.New(),
		keys:      newKeyMap(),
	}

	m.dlList = newList("Downloads")
	m.queueList = newList("Queue")

	m.dl = m.downloads.Snapshot()
	m.q = m.queue.Snapshot()
	m.setDownloadItems()
	m.setQueueItems()

	m.unsub = append(m.unsub,
		m.downloads.Subscribe(func(s downloads.Snapshot) { offer(m.dlFeed, s) }),
		m.queue.Subscribe(func(s queue.Snapshot) { offer(m.queueFeed, s) }),
	)
	return m
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	m := NewModel(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Close drops the coordinator subscriptions.
func (m *Model) Close() {
	for _, fn := range m.unsub {
		fn()
	}
	m.unsub = nil
}

// Init starts the waiters for every feed.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForDownloads(), m.waitForQueue(), m.waitForNotice(), m.waitForConfirm())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dlList.SetSize(msg.Width-4, msg.Height-8)
		m.queueList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			return m.handleConfirmKeys(msg)
		}
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.tab):
			m.tab = (m.tab + 1) % 2
			return m, nil
		}
		if m.tab == QueueTab {
			return m.handleQueueKeys(msg)
		}
		return m.handleDownloadKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgDownloads:
		// Feeds can race with the seed snapshot; never step back a version.
		if snap := msg.data.(downloads.Snapshot); snap.Version > m.dl.Version {
			m.dl = snap
			m.setDownloadItems()
		}
		return m, m.waitForDownloads()

	case MsgQueue:
		if snap := msg.data.(queue.Snapshot); snap.Version > m.q.Version {
			m.q = snap
			m.setQueueItems()
		}
		return m, m.waitForQueue()

	case MsgNotice:
		n := msg.data.(notify.Notice)
		m.notice = &n
		return m, m.waitForNotice()

	case MsgConfirm:
		req := msg.data.(confirmRequest)
		m.confirm = &req
		return m, nil

	case MsgOpDone:
		data := msg.data.(struct {
			action string
			err    error
		})
		m.err = data.err
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var answer bool
	switch {
	case key.Matches(msg, m.keys.yes):
		answer = true
	case key.Matches(msg, m.keys.no):
		answer = false
	case msg.String() == "ctrl+c":
		m.answer(false)
		return m, tea.Quit
	default:
		return m, nil
	}
	m.answer(answer)
	return m, m.waitForConfirm()
}

func (m *Model) answer(ok bool) {
	if m.confirm == nil {
		return
	}
	m.confirm.answer <- ok
	m.confirm = nil
}

func (m *Model) handleDownloadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.removeAll):
		return m, m.run("delete all", m.downloads.DeleteAll)
	}

	switch item := m.dlList.SelectedItem().(type) {
	case activeItem:
		id := item.progress.DownloadID
		switch {
		case key.Matches(msg, m.keys.pause):
			return m, m.runID("pause", id, m.downloads.PauseDownload)
		case key.Matches(msg, m.keys.resume):
			return m, m.runID("resume", id, m.downloads.ResumeDownload)
		case key.Matches(msg, m.keys.cancel):
			return m, m.runID("cancel", id, m.downloads.CancelDownload)
		case key.Matches(msg, m.keys.retry):
			return m, m.runID("retry", id, m.downloads.RetryDownload)
		}
	case downloadedItem:
		if key.Matches(msg, m.keys.remove) {
			return m, m.runID("delete", item.track.TrackID, m.downloads.DeleteTrack)
		}
	}

	var cmd tea.Cmd
	m.dlList, cmd = m.dlList.Update(msg)
	return m, cmd
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.queueList.SelectedItem().(queueItem); ok {
			index := item.index
			return m, m.run("jump", func(context.Context) error { return m.queue.JumpTo(index) })
		}
		return m, nil
	case key.Matches(msg, m.keys.next):
		return m, m.run("next", func(context.Context) error { return m.queue.SkipForward() })
	case key.Matches(msg, m.keys.previous):
		return m, m.run("previous", func(context.Context) error { return m.queue.SkipBackward() })
	case key.Matches(msg, m.keys.repeat):
		return m, m.run("repeat", func(context.Context) error { return m.queue.CycleRepeatMode() })
	case key.Matches(msg, m.keys.star):
		return m, m.run("star", m.queue.ToggleStar)
	case key.Matches(msg, m.keys.clear):
		return m, m.run("clear", func(ctx context.Context) error {
			_, err := m.queue.ClearConfirm(ctx, queue.ClearOptions{Wait: true})
			return err
		})
	}

	var cmd tea.Cmd
	m.queueList, cmd = m.queueList.Update(msg)
	return m, cmd
}

// View renders the current tab, the status line and contextual help.
func (m *Model) View() string {
	if m.confirm != nil {
		return m.renderConfirm()
	}

	var body string
	var helpKeys []key.Binding
	switch m.tab {
	case QueueTab:
		body = m.renderQueue()
		helpKeys = m.keys.queueHelp()
	default:
		body = m.renderDownloads()
		helpKeys = m.keys.downloadsHelp()
	}

	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s",
		m.renderTabs(), body, m.renderStatus(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, 2)
	for _, t := range []Tab{DownloadsTab, QueueTab} {
		if t == m.tab {
			tabs = append(tabs, styles.activeTab.Render(t.String()))
		} else {
			tabs = append(tabs, styles.tab.Render(t.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderDownloads() string {
	summary := fmt.Sprintf("%d active • %d downloaded • %s", len(m.dl.Active), m.dl.Storage.TrackCount, m.dl.FormattedSize())
	return fmt.Sprintf("%s\n%s", styles.help.Render(summary), m.dlList.View())
}

func (m *Model) renderQueue() string {
	var header []string
	if !m.q.NowPlaying.Empty() {
		state := "Paused"
		if m.q.Playing {
			state = "Playing"
		}
		header = append(header, fmt.Sprintf("%s: %s - %s", state, m.q.NowPlaying.Artist, m.q.NowPlaying.Title))
	}
	if from := m.q.Source.String(); from != "" {
		header = append(header, "Playing from "+from)
	}
	header = append(header, "Repeat: "+m.q.RepeatMode.String())
	return fmt.Sprintf("%s\n%s", styles.help.Render(strings.Join(header, " • ")), m.queueList.View())
}

func (m *Model) renderStatus() string {
	switch {
	case m.err != nil:
		return styles.err.Render(m.err.Error())
	case m.notice == nil:
		return ""
	case m.notice.IsError():
		return styles.err.Render(m.notice.String())
	case m.notice.Icon == notify.IconWarning:
		return styles.warn.Render(m.notice.String())
	default:
		return styles.ok.Render(m.notice.String())
	}
}

func (m *Model) renderConfirm() string {
	c := m.confirm.confirmation
	title := styles.title.Render(c.Title)
	yes, no := c.ConfirmText, c.CancelText
	if yes == "" {
		yes = "Yes"
	}
	if no == "" {
		no = "No"
	}
	choices := styles.help.Render(fmt.Sprintf("y: %s • n: %s", yes, no))
	return styles.dialog.Render(fmt.Sprintf("%s\n%s\n\n%s", title, c.Message, choices))
}

func (m *Model) setDownloadItems() {
	items := make([]list.Item, 0, len(m.dl.Active)+len(m.dl.Downloaded))
	for _, p := range m.dl.Active {
		items = append(items, activeItem{
			progress: p,
			title:    m.dl.Title(p.TrackID),
			bar:      m.bar.ViewAs(p.Progress),
		})
	}
	for _, t := range m.dl.Downloaded {
		items = append(items, downloadedItem{track: t})
	}
	m.dlList.SetItems(items)
}

func (m *Model) setQueueItems() {
	items := make([]list.Item, len(m.q.Queue))
	for i, q := range m.q.Queue {
		items[i] = queueItem{index: i, item: q, current: i == m.q.ActiveIndex}
	}
	m.queueList.SetItems(items)
}

// run executes fn off the event loop and reports its outcome as [MsgOpDone].
func (m *Model) run(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg(action, fn(m.ctx))
	}
}

func (m *Model) runID(action, id string, fn func(context.Context, string) error) tea.Cmd {
	return m.run(action, func(ctx context.Context) error { return fn(ctx, id) })
}

func (m *Model) waitForDownloads() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.dlFeed:
			return downloadsMsg(s)
		case <-m.ctx.Done():
			return closedMsg()
		}
	}
}

func (m *Model) waitForQueue() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.queueFeed:
			return queueMsg(s)
		case <-m.ctx.Done():
			return closedMsg()
		}
	}
}

func (m *Model) waitForNotice() tea.Cmd {
	if m.notices == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case n, ok := <-m.notices:
			if !ok {
				return closedMsg()
			}
			return noticeMsg(n)
		case <-m.ctx.Done():
			return closedMsg()
		}
	}
}

func (m *Model) waitForConfirm() tea.Cmd {
	if m.confirmer == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case req := <-m.confirmer.requests:
			return confirmMsg(req)
		case <-m.ctx.Done():
			return closedMsg()
		}
	}
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	return l
}

// offer replaces any unread value in a single-slot channel with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
