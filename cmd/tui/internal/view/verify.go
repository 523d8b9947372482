package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
)

const auditTimeout = 5 * time.Minute

// VerifyModel checks every stored invoice against its history and, when an
// archive is configured, sweeps terminal invoices into it.
type VerifyModel struct {
	CommonModel
	verifier *audit.Verifier
	archiver *audit.Archiver

	running bool
	spinner spinner.Model
	table   table.Model

	summary *audit.Summary
	swept   string
	err     error
}

func NewVerifyModel(verifier *audit.Verifier, archiver *audit.Archiver) VerifyModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Status", Width: 8},
		{Title: "Events", Width: 6},
		{Title: "Problem", Width: 70},
	}

	return VerifyModel{
		verifier: verifier,
		archiver: archiver,
		running:  true,
		spinner:  s,
		table:    newTable(columns),
	}
}

func (m VerifyModel) Title() string { return "Verify & Archive" }

func (m VerifyModel) ShortHelp() string {
	if m.archiver == nil {
		return "Esc: back | r: verify again"
	}

	return "Esc: back | r: verify again | a: archive terminal invoices"
}

func (m VerifyModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.verifyCmd())
}

func (m VerifyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case verifyAllMsg:
		m.running = false
		m.err = msg.err
		m.summary = msg.summary

		if msg.summary != nil {
			m.refreshTable()
		}

		return m, nil

	case sweepMsg:
		m.running = false
		if msg.err != nil {
			m.swept = errorStyle(fmt.Sprintf("Archive sweep failed: %v", msg.err))
			return m, nil
		}

		m.swept = okStyle(fmt.Sprintf("Archived %d, %d already present", msg.result.Archived, msg.result.Present))

		return m, nil

	case tea.KeyMsg:
		if m.running {
			return m, nil
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			m.running = true
			m.swept = ""

			return m, tea.Batch(m.spinner.Tick, m.verifyCmd())
		case "a":
			if m.archiver == nil {
				return m, nil
			}

			m.running = true

			return m, tea.Batch(m.spinner.Tick, m.sweepCmd())
		}

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m *VerifyModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.summary.Failed))
	for _, r := range m.summary.Failed {
		rows = append(rows, table.Row{
			fmt.Sprint(r.InvoiceID),
			r.Status,
			fmt.Sprint(r.Events),
			describe(r),
		})
	}

	m.table.SetRows(rows)
}

func describe(r audit.Report) string {
	if r.Problem != "" {
		return r.Problem
	}

	parts := make([]string, len(r.Mismatches))
	for i, mm := range r.Mismatches {
		parts[i] = fmt.Sprintf("%s: stored %q, replayed %q", mm.Field, mm.Stored, mm.Replayed)
	}

	return strings.Join(parts, "; ")
}

func (m VerifyModel) View() string {
	style := lipgloss.NewStyle().Padding(1)

	if m.running {
		return style.Render(fmt.Sprintf("%s Working...", m.spinner.View()))
	}

	if m.err != nil {
		return style.Render(errorStyle(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.ShortHelp())
	}

	var header string
	if len(m.summary.Failed) == 0 {
		header = okStyle(fmt.Sprintf("All %d invoices match their history", m.summary.Checked))
	} else {
		header = errorStyle(fmt.Sprintf("%d of %d invoices disagree with their history", len(m.summary.Failed), m.summary.Checked))
	}

	parts := []string{header, ""}
	if len(m.summary.Failed) > 0 {
		parts = append(parts, lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Render(m.table.View()), "")
	}

	if m.swept != "" {
		parts = append(parts, m.swept, "")
	}

	parts = append(parts, lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()))

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// Messages

type verifyAllMsg struct {
	summary *audit.Summary
	err     error
}

func (m VerifyModel) verifyCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		summary, err := m.verifier.VerifyAll(ctx)

		return verifyAllMsg{summary: summary, err: err}
	}
}

type sweepMsg struct {
	result audit.SweepResult
	err    error
}

func (m VerifyModel) sweepCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		res, err := m.archiver.Sweep(ctx)

		return sweepMsg{result: res, err: err}
	}
}
