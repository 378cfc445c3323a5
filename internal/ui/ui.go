package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/stream"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	LogView
	ConfirmView
)

// API is the part of the control API the watcher uses. It is satisfied by services.APIService.
type API interface {
	ListJobs(ctx context.Context, activeOnly bool) ([]*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	CancelJob(ctx context.Context, id string) error
	StreamURL(jobID string) string
}

// Options configures a [Model].
type Options struct {
	JobID      string        // follow this job immediately
	ActiveOnly bool          // hide finished jobs in the list
	Refresh    time.Duration // job polling period (default: 2s)
	BufferSize int           // log lines kept per stream
	Logger     *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	api    API
	opts   Options
	logger *log.Logger

	view     ViewState
	previous ViewState
	width    int
	height   int

	jobList  list.Model
	jobs     []*models.Job
	selected *models.Job

	client       *stream.Client
	streamCtx    context.Context
	streamCancel context.CancelFunc
	gen          int
	logs         viewport.Model
	bar          progress.Model

	notice string
	err    error
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, api API, opts Options) *Model {
	if opts.Refresh <= 0 {
		opts.Refresh = 2 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 500
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	jl := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jl.Title = "Jobs"

	return &Model{
		ctx:     ctx,
		api:     api,
		opts:    opts,
		logger:  logger,
		view:    JobListView,
		jobList: jl,
		logs:    viewport.New(0, 0),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init fetches the job list, or opens the requested job's stream.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchJobs(), m.tick()}
	if m.opts.JobID != "" {
		m.selected = &models.Job{ID: m.opts.JobID}
		cmds = append(cmds, m.fetchJob(m.opts.JobID), m.openStream())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-4)
		m.logs.Width = msg.Width - 4
		m.logs.Height = max(msg.Height-10, 3)
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleListKeys(msg)
		case LogView:
			return m.handleLogKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		data := msg.data.(jobsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.setJobs(data.jobs)
		return m, nil

	case MsgJobFetched:
		job := msg.data.(*models.Job)
		if m.selected != nil && m.selected.ID == job.ID {
			m.selected = job
		}
		return m, nil

	case MsgStreamUpdate:
		if msg.data.(int) != m.gen || m.client == nil {
			return m, nil
		}
		m.renderLines()
		cmd := m.waitForStream()
		if m.client.State() == stream.Ended && m.selected != nil {
			cmd = tea.Batch(cmd, m.fetchJob(m.selected.ID))
		}
		return m, cmd

	case MsgJobCancelled:
		data := msg.data.(jobCancelled)
		if data.err != nil {
			m.notice = ""
			m.err = data.err
		} else {
			m.notice = fmt.Sprintf("cancelled %s", data.id)
		}
		return m, tea.Batch(m.fetchJobs(), m.fetchJob(data.id))

	case MsgTick:
		cmds := []tea.Cmd{m.tick()}
		switch {
		case m.view == JobListView:
			cmds = append(cmds, m.fetchJobs())
		case m.selected != nil && m.selected.Status.IsActive():
			cmds = append(cmds, m.fetchJob(m.selected.ID))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case JobListView:
		return m.renderList()
	case LogView:
		return m.renderLogs()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.closeStream()
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			m.selected = item.job
			return m, m.openStream()
		}
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok && item.job.Status.IsActive() {
			m.selected = item.job
			m.previous, m.view = JobListView, ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleLogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.closeStream()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.closeStream()
		m.view = JobListView
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.cancel):
		if m.selected != nil && m.selected.Status.IsActive() {
			m.previous, m.view = LogView, ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = m.previous
		return m, m.cancelJob(m.selected.ID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = m.previous
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case JobListView:
		m.jobList, cmd = m.jobList.Update(msg)
	case LogView:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m *Model) setJobs(jobs []*models.Job) {
	m.jobs = jobs
	items := make([]list.Item, len(jobs))
	// newest first
	for i, j := range jobs {
		items[len(jobs)-1-i] = jobItem{job: j}
	}
	m.jobList.SetItems(items)
}

// openStream follows the selected job's log topic, replacing any previous stream.
func (m *Model) openStream() tea.Cmd {
	m.closeStream()
	m.view = LogView
	m.gen++
	m.logs.SetContent("")

	ctx, cancel := context.WithCancel(m.ctx)
	m.streamCtx, m.streamCancel = ctx, cancel
	m.client = stream.NewClient(m.api.StreamURL(m.selected.ID), m.opts.BufferSize, m.logger)

	go func(c *stream.Client) {
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("stream stopped", "error", err)
		}
	}(m.client)

	return m.waitForStream()
}

func (m *Model) closeStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.client = nil
}

// waitForStream blocks until the current stream signals, or it is replaced.
func (m *Model) waitForStream() tea.Cmd {
	client, gen, ctx := m.client, m.gen, m.streamCtx
	if client == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-client.Updates():
			return streamUpdateMsg(gen)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) renderLines() {
	var b strings.Builder
	for _, e := range m.client.Lines() {
		line := e.Message
		if e.Phase != "" {
			line = fmt.Sprintf("[%s] %s", e.Phase, line)
		}
		b.WriteString(styles.help.Render(e.Time.Local().Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(styles.levelStyle(e.Level).Render(line))
		b.WriteString("\n")
	}
	atBottom := m.logs.AtBottom()
	m.logs.SetContent(b.String())
	if atBottom {
		m.logs.GotoBottom()
	}
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.api.ListJobs(m.ctx, m.opts.ActiveOnly)
		return jobsFetchedMsg(jobs, err)
	}
}

func (m *Model) fetchJob(id string) tea.Cmd {
	return func() tea.Msg {
		job, err := m.api.GetJob(m.ctx, id)
		if err != nil {
			m.logger.Debug("job refresh failed", "job", id, "error", err)
			return nil
		}
		return jobFetchedMsg(job)
	}
}

func (m *Model) cancelJob(id string) tea.Cmd {
	return func() tea.Msg {
		return jobCancelledMsg(id, m.api.CancelJob(m.ctx, id))
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) renderList() string {
	var b strings.Builder
	b.WriteString(m.jobList.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(styles.ok.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.cancel, m.keys.refresh, m.keys.quit}))
	return b.String()
}

func (m *Model) renderLogs() string {
	job := m.selected
	name := job.Result.Title
	if name == "" {
		name = job.URL
	}
	if name == "" {
		name = job.ID
	}

	state := stream.Connecting
	var streamErr error
	if m.client != nil {
		state = m.client.State()
		streamErr = m.client.Err()
	}
	stateLine := styles.stateStyle(state).Render(state.String())
	if state == stream.Disconnected && streamErr != nil {
		stateLine += styles.help.Render(fmt.Sprintf(" (%v, retrying)", streamErr))
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %s  %s\n",
		styles.statusStyle(job.Status).Render(job.Status.String()),
		m.bar.ViewAs(float64(job.Progress)/100),
		stateLine,
	)
	if job.Error != "" {
		b.WriteString(styles.err.Render(job.Error))
		b.WriteString("\n")
	}
	if job.Status.IsFinished() {
		r := job.Result
		fmt.Fprintf(&b, "%s\n", styles.ok.Render(fmt.Sprintf("%d succeeded, %d skipped, %d failed", r.Succeeded, r.Skipped, r.Failed)))
	}
	b.WriteString("\n")

	if m.client != nil && len(m.client.Lines()) == 0 && state == stream.Connected {
		b.WriteString(styles.help.Render("connected, waiting for output"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.logs.View())
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(styles.ok.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.cancel, m.keys.quit}))
	return b.String()
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Cancel job %s?", m.selected.ID))
	help := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.selected.URL, help)
}
