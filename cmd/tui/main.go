package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/blockbill/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/blockbill/internal/app"
	"github.com/MrJamesThe3rd/blockbill/internal/config"
)

type model struct {
	app *app.App

	currentView View

	invoicesView  view.InvoicesModel
	statementView view.StatementModel
	importView    view.ImportModel
	verifyView    view.VerifyModel
}

type View int

const (
	ViewMenu      View = 0
	ViewInvoices  View = 1
	ViewStatement View = 2
	ViewImport    View = 3
	ViewVerify    View = 4
)

func newModel(a *app.App) model {
	return model{
		app:         a,
		currentView: ViewMenu,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewInvoices
				m.invoicesView = view.NewInvoicesModel(m.app.Query, m.app.Verifier)

				return m, m.invoicesView.Init()
			case "2":
				m.currentView = ViewStatement
				m.statementView = view.NewStatementModel(m.app.Statements)

				return m, m.statementView.Init()
			case "3":
				m.currentView = ViewImport
				m.importView = view.NewImportModel(m.app.Importer)

				return m, m.importView.Init()
			case "4":
				m.currentView = ViewVerify
				m.verifyView = view.NewVerifyModel(m.app.Verifier, m.app.Archiver)

				return m, m.verifyView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewInvoices:
		var newModel tea.Model
		newModel, cmd = m.invoicesView.Update(msg)
		m.invoicesView = newModel.(view.InvoicesModel)
	case ViewStatement:
		var newModel tea.Model
		newModel, cmd = m.statementView.Update(msg)
		m.statementView = newModel.(view.StatementModel)
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewVerify:
		var newModel tea.Model
		newModel, cmd = m.verifyView.Update(msg)
		m.verifyView = newModel.(view.VerifyModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"BlockBill TUI\n\n" +
				"1. Browse Invoices\n" +
				"2. Party Statement\n" +
				"3. Import Invoices\n" +
				"4. Verify & Archive\n\n" +
				"q. Quit",
		)
	case ViewInvoices:
		return m.invoicesView.View()
	case ViewStatement:
		return m.statementView.View()
	case ViewImport:
		return m.importView.View()
	case ViewVerify:
		return m.verifyView.View()
	}

	return "Unknown View"
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The terminal belongs to the TUI; logs only go out when LOG_FILE is set.
	logOut := io.Discard
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := tea.LogToFile(path, "blockbill")
		if err != nil {
			slog.Error("failed to open log file", "error", err)
			os.Exit(1)
		}
		defer f.Close()

		logOut = f
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, cfg.Logger(logOut))
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	a.Start(ctx)

	p := tea.NewProgram(newModel(a), tea.WithAltScreen())
	_, runErr := p.Run()

	if err := a.Close(); err != nil {
		slog.Error("failed to close", "error", err)
	}

	if runErr != nil {
		slog.Error("failed to run TUI", "error", runErr)
		os.Exit(1)
	}
}
