package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
	"github.com/MrJamesThe3rd/blockbill/internal/statement"
)

type statementState int

const (
	statementStateForm statementState = iota
	statementStateBuilding
	statementStateResult
)

type statementFields struct {
	party  string
	status string
	dir    string
}

// StatementModel asks for a party and shows its statement, optionally saving
// the zip bundle to a directory.
type StatementModel struct {
	CommonModel
	statements *statement.Service

	state   statementState
	form    *huh.Form
	input   *statementFields
	spinner spinner.Model

	summary string
	saved   string
	err     error
}

func NewStatementModel(svc *statement.Service) StatementModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := StatementModel{
		statements: svc,
		input:      &statementFields{},
		spinner:    s,
	}
	m.form = m.buildForm()

	return m
}

func (m StatementModel) Title() string { return "Statement" }

func (m StatementModel) ShortHelp() string {
	switch m.state {
	case statementStateResult:
		return "Esc: back to menu | n: new statement"
	case statementStateBuilding:
		return "Building..."
	}

	return "Esc: back | Enter: confirm"
}

func (m StatementModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m StatementModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.state {
	case statementStateForm:
		return m.updateForm(msg)
	case statementStateBuilding:
		return m.updateBuilding(msg)
	case statementStateResult:
		return m.updateResult(msg)
	}

	return m, nil
}

func (m StatementModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		return m, Back
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.state = statementStateBuilding
	m.err = nil

	return m, tea.Batch(m.spinner.Tick, m.buildCmd(*m.input))
}

func (m StatementModel) updateBuilding(msg tea.Msg) (tea.Model, tea.Cmd) {
	if result, ok := msg.(statementResultMsg); ok {
		m.state = statementStateResult
		m.err = result.err
		m.summary = result.summary
		m.saved = result.saved

		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)

	return m, cmd
}

func (m StatementModel) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "n":
			m.state = statementStateForm
			m.form = m.buildForm()

			return m, m.form.Init()
		}
	}

	return m, nil
}

func (m StatementModel) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("party").
				Title("Party address").
				Placeholder("0x...").
				Value(&m.input.party).
				Validate(func(s string) error {
					_, err := invoice.ParseAddress(s)
					return err
				}),

			huh.NewSelect[string]().
				Key("status").
				Title("List invoices").
				Description("Totals always cover every invoice").
				Options(
					huh.NewOption("All", ""),
					huh.NewOption("Open", string(invoice.StatusOpen)),
					huh.NewOption("Settled", string(invoice.StatusSettled)),
					huh.NewOption("Void", string(invoice.StatusVoid)),
				).
				Value(&m.input.status),

			huh.NewInput().
				Key("dir").
				Title("Save zip to").
				Description("Leave empty to only display the statement").
				Placeholder("./statements").
				Value(&m.input.dir),
		),
	).WithWidth(60).WithShowHelp(false)
}

func (m StatementModel) View() string {
	switch m.state {
	case statementStateForm:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())

	case statementStateBuilding:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("%s Building statement...", m.spinner.View()),
		)

	case statementStateResult:
		return m.viewResult()
	}

	return ""
}

func (m StatementModel) viewResult() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(1).Render(
			errorStyle(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.ShortHelp(),
		)
	}

	parts := []string{m.summary}
	if m.saved != "" {
		parts = append(parts, okStyle("Saved "+m.saved))
	}

	parts = append(parts, "", lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()))

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

type statementResultMsg struct {
	summary string
	saved   string
	err     error
}

const statementTimeout = 30 * time.Second

func (m StatementModel) buildCmd(in statementFields) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statementTimeout)
		defer cancel()

		var status *invoice.Status
		if in.status != "" {
			status = new(invoice.Status(in.status))
		}

		st, err := m.statements.Build(ctx, in.party, status)
		if err != nil {
			return statementResultMsg{err: err}
		}

		res := statementResultMsg{summary: statement.Summary(st)}

		if in.dir != "" {
			path, err := saveZip(in.dir, st)
			if err != nil {
				return statementResultMsg{err: err}
			}

			res.saved = path
		}

		return res
	}
}

func saveZip(dir string, st *statement.Statement) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, statement.Filename(st))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	if err := statement.WriteZip(f, st); err != nil {
		f.Close()
		return "", err
	}

	return path, f.Close()
}
