package view

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/blockbill/internal/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

type invoicesState int

const (
	invoicesStateBrowse invoicesState = iota
	invoicesStateParty
)

var statusFilters = []*invoice.Status{
	nil,
	new(invoice.StatusOpen),
	new(invoice.StatusSettled),
	new(invoice.StatusVoid),
}

// partyFields is bound to the party form. It lives behind a pointer so the
// bindings survive the model being copied by value.
type partyFields struct {
	address string
	role    string
}

// InvoicesModel browses invoices by status or party and shows the event
// history of the selected one.
type InvoicesModel struct {
	CommonModel
	query    *invoice.Query
	verifier *audit.Verifier

	state invoicesState
	table table.Model
	invs  []*invoice.Invoice
	form  *huh.Form
	input *partyFields

	statusFilterIdx int
	party           invoice.Address
	role            string

	history   []invoice.Event
	historyID int64

	loading bool
	err     error
	status  string
}

func NewInvoicesModel(query *invoice.Query, verifier *audit.Verifier) InvoicesModel {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Created", Width: 12},
		{Title: "Status", Width: 8},
		{Title: "Issuer", Width: 14},
		{Title: "Counterparty", Width: 14},
		{Title: "Amount", Width: 28},
		{Title: "Content", Width: 30},
	}

	return InvoicesModel{
		query:    query,
		verifier: verifier,
		table:    newTable(columns),
		input:    &partyFields{role: "issuer"},
		role:     "issuer",
		loading:  true,
	}
}

func (m InvoicesModel) Title() string { return "Invoices" }
func (m InvoicesModel) ShortHelp() string {
	if m.state == invoicesStateParty {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | Enter: history | v: verify | s: status filter | p: party | c: clear party | r: refresh"
}

func (m InvoicesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m InvoicesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadInvoicesMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.invs = msg.invs
		m.history = nil
		m.historyID = 0
		m.refreshTable()

		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading history: %v", msg.err)
			return m, nil
		}

		m.history = msg.events
		m.historyID = msg.id

		return m, nil

	case verifyOneMsg:
		m.status = msg.text
		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case invoicesStateBrowse:
		return m.updateBrowse(msg)
	case invoicesStateParty:
		return m.updateParty(msg)
	}

	return m, nil
}

func (m InvoicesModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			if m.history != nil {
				m.history = nil
				m.historyID = 0

				return m, nil
			}

			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % len(statusFilters)
			m.loading = true

			return m, m.loadCmd()
		case "p":
			return m.enterPartyMode()
		case "c":
			m.party = ""
			m.loading = true

			return m, m.loadCmd()
		case "enter":
			if inv := m.selected(); inv != nil {
				return m, m.historyCmd(inv.ID)
			}

			return m, nil
		case "v":
			if inv := m.selected(); inv != nil {
				return m, m.verifyCmd(inv.ID)
			}

			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m InvoicesModel) selected() *invoice.Invoice {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.invs) {
		return nil
	}

	return m.invs[idx]
}

func (m InvoicesModel) enterPartyMode() (tea.Model, tea.Cmd) {
	m.input.address = string(m.party)
	m.input.role = m.role

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("address").
				Title("Party address").
				Placeholder("0x...").
				Value(&m.input.address).
				Validate(func(s string) error {
					_, err := invoice.ParseAddress(s)
					return err
				}),

			huh.NewSelect[string]().
				Key("role").
				Title("Show invoices").
				Options(
					huh.NewOption("Issued by this party", "issuer"),
					huh.NewOption("Owed by this party", "counterparty"),
				).
				Value(&m.input.role),
		),
	).WithWidth(50).WithShowHelp(false)

	m.state = invoicesStateParty
	m.table.Blur()

	return m, m.form.Init()
}

func (m InvoicesModel) updateParty(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = invoicesStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	// The form validated the address already.
	m.party, _ = invoice.ParseAddress(m.input.address)
	m.role = m.input.role
	m.state = invoicesStateBrowse
	m.form = nil
	m.loading = true
	m.table.Focus()

	return m, m.loadCmd()
}

func (m InvoicesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading invoices...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)) + "\n\n(Esc to back)")
	}

	partyLabel := "Any"
	if m.party != "" {
		partyLabel = fmt.Sprintf("%s (%s)", ShortAddress(string(m.party)), m.role)
	}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | [p] Party: %s | %d shown",
		activeStyle(statusLabel(statusFilters[m.statusFilterIdx])),
		activeStyle(partyLabel),
		len(m.invs),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if panel := m.sidePanel(); panel != "" {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(
		lipgloss.JoinVertical(lipgloss.Left, content, "", lipgloss.NewStyle().Faint(true).Render(m.ShortHelp())),
	)
}

func (m InvoicesModel) sidePanel() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Width(52)

	if m.state == invoicesStateParty && m.form != nil {
		return style.Render("Filter by party\n\n" + m.form.View())
	}

	if m.history == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "History of #%d\n\n", m.historyID)

	for _, ev := range m.history {
		fmt.Fprintf(&sb, "%d. %s by %s\n   %s\n", ev.Seq, activeStyle(string(ev.Kind)), ShortAddress(string(ev.Actor)),
			ev.OccurredAt.Format("2006-01-02 15:04:05"))

		if ev.Amount != nil {
			fmt.Fprintf(&sb, "   amount %s\n", FormatAmount(*ev.Amount))
		}

		if ev.ContentRef != "" {
			fmt.Fprintf(&sb, "   content %s\n", ev.ContentRef)
		}
	}

	return style.Render(sb.String())
}

func statusLabel(s *invoice.Status) string {
	if s == nil {
		return "All"
	}

	return string(*s)
}

func (m *InvoicesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.invs))
	for _, inv := range m.invs {
		rows = append(rows, table.Row{
			fmt.Sprint(inv.ID),
			FormatDate(inv.CreatedAt),
			string(inv.Status),
			ShortAddress(string(inv.Issuer)),
			ShortAddress(string(inv.Counterparty)),
			FormatAmount(inv.Amount),
			inv.ContentRef,
		})
	}

	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

// Messages

type loadInvoicesMsg struct {
	invs []*invoice.Invoice
	err  error
}

// loadCmd fetches the first page for the current filters. Without a party and
// status, the first page of every status is merged by id.
func (m InvoicesModel) loadCmd() tea.Cmd {
	status := statusFilters[m.statusFilterIdx]
	party := m.party
	role := m.role

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		filter := invoice.ListFilter{Status: status, Limit: invoice.MaxListLimit}

		switch {
		case party != "" && role == "counterparty":
			invs, err := m.query.ListByCounterparty(ctx, string(party), filter)
			return loadInvoicesMsg{invs: invs, err: err}
		case party != "":
			invs, err := m.query.ListByIssuer(ctx, string(party), filter)
			return loadInvoicesMsg{invs: invs, err: err}
		case status != nil:
			invs, err := m.query.ListByStatus(ctx, *status, filter)
			return loadInvoicesMsg{invs: invs, err: err}
		}

		var all []*invoice.Invoice

		for _, s := range statusFilters[1:] {
			invs, err := m.query.ListByStatus(ctx, *s, filter)
			if err != nil {
				return loadInvoicesMsg{err: err}
			}

			all = append(all, invs...)
		}

		slices.SortFunc(all, func(a, b *invoice.Invoice) int { return cmp.Compare(a.ID, b.ID) })

		return loadInvoicesMsg{invs: all}
	}
}

type historyMsg struct {
	id     int64
	events []invoice.Event
	err    error
}

func (m InvoicesModel) historyCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		events, err := m.query.History(ctx, id)

		return historyMsg{id: id, events: events, err: err}
	}
}

type verifyOneMsg struct {
	text string
}

func (m InvoicesModel) verifyCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		report, err := m.verifier.Verify(ctx, id)
		if err != nil {
			return verifyOneMsg{text: fmt.Sprintf("Invoice #%d: %v", id, err)}
		}

		if err := report.Err(); err != nil {
			return verifyOneMsg{text: fmt.Sprintf("Invoice #%d: %v", id, err)}
		}

		return verifyOneMsg{text: fmt.Sprintf("Invoice #%d matches its %d events", id, report.Events)}
	}
}
