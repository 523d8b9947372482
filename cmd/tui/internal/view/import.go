package view

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/blockbill/internal/importer"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

const importTimeout = 2 * time.Minute

type importState int

const (
	importStateIssuer importState = iota
	importStateFilePick
	importStateParsing
	importStatePreview
	importStateResult
)

// ImportModel issues a batch of invoices from a CSV file after showing a
// preview of the parsed rows.
type ImportModel struct {
	CommonModel
	importService *importer.Service

	state      importState
	form       *huh.Form
	issuerIn   *string
	issuer     invoice.Address
	filePicker filepicker.Model

	path    string
	preview *importer.Result
	rows    list.Model

	status string
	err    error
}

func NewImportModel(impSvc *importer.Service) ImportModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".csv", ".txt"}
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	m := ImportModel{
		importService: impSvc,
		issuerIn:      new(""),
		filePicker:    fp,
	}
	m.form = m.buildIssuerForm()

	return m
}

func (m ImportModel) Title() string { return "Import Invoices" }

func (m ImportModel) ShortHelp() string {
	if m.state == importStatePreview {
		return "Enter: issue all | Esc: cancel"
	}

	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m ImportModel) buildIssuerForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("issuer").
				Title("Issue as").
				Description("Every row becomes an invoice from this address").
				Placeholder("0x...").
				Value(m.issuerIn).
				Validate(func(s string) error {
					_, err := invoice.ParseAddress(s)
					return err
				}),
		),
	).WithWidth(60).WithShowHelp(false)
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

		if m.state == importStatePreview {
			return m.updatePreview(msg)
		}

	case previewMsg:
		if msg.err != nil {
			m.state = importStateResult
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.preview = msg.result
		m.state = importStatePreview

		items := make([]list.Item, len(msg.result.Rows))
		for i, p := range msg.result.Rows {
			items[i] = rowItem{params: p, line: i + 1}
		}

		m.rows = list.New(items, rowDelegate{}, 100, 20)
		m.rows.Title = fmt.Sprintf("%d invoices (%s, %s)", len(items), msg.result.Profile, msg.result.Charset)
		m.rows.SetShowStatusBar(false)
		m.rows.SetFilteringEnabled(false)
		m.rows.SetShowHelp(false)

		return m, nil

	case importDoneMsg:
		m.state = importStateResult
		if msg.err != nil {
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.status = fmt.Sprintf("Issued %d invoices (#%d to #%d).", len(msg.invs), msg.invs[0].ID, msg.invs[len(msg.invs)-1].ID)

		return m, nil
	}

	switch m.state {
	case importStateIssuer:
		return m.updateIssuer(msg)
	case importStateFilePick:
		return m.updateFilePick(msg)
	}

	return m, nil
}

func (m ImportModel) updateIssuer(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.issuer, _ = invoice.ParseAddress(*m.issuerIn)
	m.state = importStateFilePick

	return m, m.filePicker.Init()
}

func (m ImportModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.path = path
		m.state = importStateParsing
		m.status = fmt.Sprintf("Reading %s...", path)

		return m, m.previewCmd(path)
	}

	return m, cmd
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateFilePick, importStatePreview, importStateResult:
		m.state = importStateIssuer
		m.preview = nil
		m.err = nil
		m.status = ""
		m.form = m.buildIssuerForm()

		return m, m.form.Init()
	}

	return m, Back
}

func (m ImportModel) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		m.state = importStateParsing
		m.status = fmt.Sprintf("Issuing %d invoices...", len(m.preview.Rows))

		return m, m.importCmd(m.path)
	}

	var cmd tea.Cmd
	m.rows, cmd = m.rows.Update(msg)

	return m, cmd
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateIssuer:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())
	case importStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select CSV to issue as %s:\n\n%s", ShortAddress(string(m.issuer)), m.filePicker.View()),
		)
	case importStateParsing:
		return lipgloss.NewStyle().Padding(2).Render(m.status)
	case importStatePreview:
		return lipgloss.NewStyle().Padding(1).Render(
			m.rows.View() + "\n" + lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()),
		)
	case importStateResult:
		return m.viewResult()
	}

	return ""
}

func (m ImportModel) viewResult() string {
	style := lipgloss.NewStyle().Padding(2)
	if m.err != nil {
		return style.Render(errorStyle(m.status) + "\n\n(Esc to go back)")
	}

	return style.Render(okStyle(m.status) + "\n\n(Esc to go back)")
}

// Messages

type previewMsg struct {
	result *importer.Result
	err    error
}

type importDoneMsg struct {
	invs []*invoice.Invoice
	err  error
}

func (m ImportModel) previewCmd(path string) tea.Cmd {
	issuer := m.issuer

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return previewMsg{err: err}
		}
		defer f.Close()

		res, err := m.importService.Preview(issuer, f)

		return previewMsg{result: res, err: err}
	}
}

func (m ImportModel) importCmd(path string) tea.Cmd {
	issuer := m.issuer

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return importDoneMsg{err: err}
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		invs, err := m.importService.Import(ctx, issuer, f)

		return importDoneMsg{invs: invs, err: err}
	}
}

// Row list item

type rowItem struct {
	params invoice.IssueParams
	line   int
}

func (i rowItem) Title() string       { return "" }
func (i rowItem) Description() string { return "" }
func (i rowItem) FilterValue() string { return "" }

type rowDelegate struct{}

func (d rowDelegate) Height() int                             { return 1 }
func (d rowDelegate) Spacing() int                            { return 0 }
func (d rowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(rowItem)
	if !ok {
		return
	}

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
	}

	ref := item.params.ContentRef
	if ref == "" {
		ref = "-"
	}

	fmt.Fprintf(w, "%s%3d  %s  %28s  %s", cursor, item.line, item.params.Counterparty, FormatAmount(item.params.Amount), ref)
}
