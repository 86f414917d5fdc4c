package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/basket/taskorc/internal/store"
)

// snapshot is one poll's worth of task state, grounded on tui.Snapshot (a
// flat struct the model redraws from on every tick) generalized from daemon
// health counters to one task's detail/audits/units.
type snapshot struct {
	taskID  int64
	detail  store.TaskDetail
	audits  []store.AuditsLog
	units   []store.Unit
	err     error
	fetched time.Time
}

type tickMsg time.Time

type fetchedMsg snapshot

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchCmd(client *apiClient, taskID int64) tea.Cmd {
	return func() tea.Msg {
		detail, err := client.getTask(taskID)
		if err != nil {
			return fetchedMsg{taskID: taskID, err: err, fetched: time.Now()}
		}
		audits, err := client.listAudits(taskID)
		if err != nil {
			return fetchedMsg{taskID: taskID, err: err, fetched: time.Now()}
		}
		units, err := client.listUnits(taskID)
		if err != nil {
			return fetchedMsg{taskID: taskID, err: err, fetched: time.Now()}
		}
		return fetchedMsg{taskID: taskID, detail: detail, audits: audits, units: units, fetched: time.Now()}
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// model is a single-task operator view: type a task id, watch it poll.
// Grounded on tui.model (a StatusProvider re-polled on every tickMsg),
// generalized from a push-free in-process status function to an
// HTTP-fetched snapshot of one task's detail/audits/units.
type model struct {
	client  *apiClient
	input   string
	editing bool
	snap    snapshot
}

func initialModel(client *apiClient, initialTaskID int64) model {
	m := model{client: client, editing: initialTaskID == 0}
	if initialTaskID != 0 {
		m.snap.taskID = initialTaskID
	} else {
		m.input = ""
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.snap.taskID != 0 {
		return tea.Batch(fetchCmd(m.client, m.snap.taskID), tickCmd())
	}
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		}
		if m.editing {
			switch msg.String() {
			case "enter":
				id, err := strconv.ParseInt(strings.TrimSpace(m.input), 10, 64)
				if err != nil || id <= 0 {
					return m, nil
				}
				m.editing = false
				m.snap = snapshot{taskID: id}
				return m, fetchCmd(m.client, id)
			case "backspace":
				if len(m.input) > 0 {
					m.input = m.input[:len(m.input)-1]
				}
				return m, nil
			case "esc", "q":
				return m, tea.Quit
			default:
				if len(msg.String()) == 1 && msg.String()[0] >= '0' && msg.String()[0] <= '9' {
					m.input += msg.String()
				}
				return m, nil
			}
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "n":
			m.editing = true
			m.input = ""
			return m, nil
		case "r":
			if m.snap.taskID != 0 {
				return m, fetchCmd(m.client, m.snap.taskID)
			}
		}
	case tickMsg:
		if m.snap.taskID != 0 && !m.editing {
			return m, tea.Batch(fetchCmd(m.client, m.snap.taskID), tickCmd())
		}
		return m, tickCmd()
	case fetchedMsg:
		if int64(msg.taskID) == m.snap.taskID {
			m.snap = snapshot(msg)
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("orchestratorctl") + "\n")

	if m.editing {
		b.WriteString(labelStyle.Render("enter task id: ") + m.input + "\n")
		b.WriteString(labelStyle.Render("(enter to load, esc to quit)\n"))
		return b.String()
	}

	if m.snap.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("task %d: %v", m.snap.taskID, m.snap.err)) + "\n")
		b.WriteString(labelStyle.Render("press n for a new task id, r to retry, q to quit\n"))
		return b.String()
	}

	task := m.snap.detail.Task
	if task == nil {
		b.WriteString(labelStyle.Render("loading task " + strconv.FormatInt(m.snap.taskID, 10) + "...\n"))
		return b.String()
	}

	b.WriteString(boxStyle.Render(renderTaskPanel(m.snap)) + "\n")
	b.WriteString(boxStyle.Render(renderUnitsPanel(m.snap.units)) + "\n")
	b.WriteString(boxStyle.Render(renderAuditsPanel(m.snap.audits)) + "\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("last refreshed %s — n: new task, r: refresh, q: quit\n", m.snap.fetched.Format(time.TimeOnly))))
	return b.String()
}

func renderTaskPanel(s snapshot) string {
	t := s.detail.Task
	var b strings.Builder
	fmt.Fprintf(&b, "Task #%d  %s\n", t.ID, t.State)
	fmt.Fprintf(&b, "name: %s\n", t.Name)
	fmt.Fprintf(&b, "owner: %s  session: %s\n", t.Owner, t.SessionID)
	if t.CurrRoundID != nil {
		fmt.Fprintf(&b, "current round: %s\n", *t.CurrRoundID)
	}
	if ws := s.detail.Workspace; ws != nil {
		fmt.Fprintf(&b, "prd: %s\n", truncate(ws.PRD, 80))
		if ws.Result != nil {
			fmt.Fprintf(&b, "result: %s\n", truncate(*ws.Result, 80))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderUnitsPanel(units []store.Unit) string {
	var b strings.Builder
	b.WriteString("Units (current round)\n")
	if len(units) == 0 {
		b.WriteString(labelStyle.Render("(none)"))
		return b.String()
	}
	for _, u := range units {
		fmt.Fprintf(&b, "  [%d] %-20s %s\n", u.Sequence, u.Name, u.State)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAuditsPanel(audits []store.AuditsLog) string {
	var b strings.Builder
	b.WriteString("Recent audits\n")
	if len(audits) == 0 {
		b.WriteString(labelStyle.Render("(none)"))
		return b.String()
	}
	start := 0
	if len(audits) > 5 {
		start = len(audits) - 5
	}
	for _, a := range audits[start:] {
		fmt.Fprintf(&b, "  %s  %-12s %s\n", a.CreatedAt.Format(time.TimeOnly), a.Kind, truncate(string(a.Message), 60))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
