package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/poller"
	"github.com/lasersell/viewer/internal/telemetry"
)

// PollFeed is the slice of the polling supervisor the dashboard consumes.
type PollFeed interface {
	Updates() <-chan poller.Update
	Current() poller.Update
	Retry()
}

// AgentAPI is the client surface the dashboard calls outside the poll
// loop: price quotes and disconnect.
type AgentAPI interface {
	FetchPrice(ctx context.Context, currency string) (model.PriceQuote, error)
	Disconnect(ctx context.Context, token string)
}

// CredentialKeeper is what the dashboard needs from the credential store.
type CredentialKeeper interface {
	Get() (model.Credential, bool)
	Clear() error
	PreferredCurrency(fallback string) string
	SetPreferredCurrency(currency string) error
}

var supportedCurrencies = []string{"usd", "eur", "gbp"}

type pollUpdateMsg poller.Update

type feedClosedMsg struct{}

type priceMsg struct {
	quote model.PriceQuote
	err   error
}

type priceTickMsg struct{}

type disconnectedMsg struct{}

// DashboardPage renders the live view of one trading agent.
type DashboardPage struct {
	feed  PollFeed
	api   AgentAPI
	store CredentialKeeper
	keys  KeyMap

	update    poller.Update
	updatedAt time.Time
	price     model.PriceQuote
	currency  string

	priceRefresh time.Duration
	listening    bool
}

// NewDashboardPage creates the dashboard screen.
func NewDashboardPage(feed PollFeed, api AgentAPI, store CredentialKeeper) *DashboardPage {
	return &DashboardPage{
		feed:         feed,
		api:          api,
		store:        store,
		keys:         DefaultKeyMap(),
		update:       feed.Current(),
		currency:     store.PreferredCurrency(model.DefaultCurrency),
		priceRefresh: model.DefaultPriceRefresh,
	}
}

func (d *DashboardPage) ID() string { return PageDashboard }

func (d *DashboardPage) Init() tea.Cmd {
	d.update = d.feed.Current()
	cmds := []tea.Cmd{d.fetchPriceCmd(d.currency)}
	if !d.listening {
		// Subscribe once; Init runs again every time the pairing page
		// hands control back.
		d.listening = true
		cmds = append(cmds, d.waitForUpdate(), d.priceTick())
	}
	if d.update.Loading {
		cmds = append(cmds, spinnerTick())
	}
	return tea.Batch(cmds...)
}

func (d *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case pollUpdateMsg:
		d.update = poller.Update(msg)
		d.updatedAt = time.Now()
		cmds := []tea.Cmd{d.waitForUpdate()}
		if d.update.Loading {
			cmds = append(cmds, spinnerTick())
		}
		return tea.Batch(cmds...), nil

	case feedClosedMsg:
		return tea.Quit, nil

	case spinnerTickMsg:
		if d.update.Loading {
			return spinnerTick(), nil
		}
		return nil, nil

	case priceTickMsg:
		return tea.Batch(d.fetchPriceCmd(d.currency), d.priceTick()), nil

	case priceMsg:
		// A failed or superseded quote keeps the previous one on screen.
		if msg.err == nil && msg.quote.Currency == d.currency {
			d.price = msg.quote
		}
		return nil, nil

	case disconnectedMsg:
		return nil, &PageNav{PageID: PagePairing}
	}
	return nil, nil
}

func (d *DashboardPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(msg, d.keys.Quit):
		return tea.Quit, nil

	case key.Matches(msg, d.keys.Retry):
		d.feed.Retry()
		return nil, nil

	case key.Matches(msg, d.keys.Disconnect):
		return d.disconnectCmd(), nil

	case key.Matches(msg, d.keys.Currency):
		d.currency = nextCurrency(d.currency)
		d.price = model.PriceQuote{}
		// Persisting the preference is best-effort; the session keeps
		// the new currency either way.
		_ = d.store.SetPreferredCurrency(d.currency)
		return d.fetchPriceCmd(d.currency), nil

	case key.Matches(msg, d.keys.Enter):
		if d.update.Status == model.StatusUnauthorized || d.update.Status == model.StatusIdle {
			return nil, &PageNav{PageID: PagePairing}
		}
	}
	return nil, nil
}

func (d *DashboardPage) waitForUpdate() tea.Cmd {
	ch := d.feed.Updates()
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return pollUpdateMsg(u)
	}
}

func (d *DashboardPage) fetchPriceCmd(currency string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		quote, err := d.api.FetchPrice(ctx, currency)
		return priceMsg{quote: quote, err: err}
	}
}

func (d *DashboardPage) priceTick() tea.Cmd {
	return tea.Tick(d.priceRefresh, func(_ time.Time) tea.Msg {
		return priceTickMsg{}
	})
}

func (d *DashboardPage) disconnectCmd() tea.Cmd {
	return func() tea.Msg {
		cred, ok := d.store.Get()
		if ok {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d.api.Disconnect(ctx, cred.ViewerToken)
			cancel()
		}
		if err := d.store.Clear(); err != nil {
			return disconnectedMsg{} // local state still drops the pairing
		}
		return disconnectedMsg{}
	}
}

func nextCurrency(current string) string {
	for i, c := range supportedCurrencies {
		if c == current {
			return supportedCurrencies[(i+1)%len(supportedCurrencies)]
		}
	}
	return supportedCurrencies[0]
}

// --- rendering ---

func (d *DashboardPage) View(width, height int) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}

	header := d.renderHeader(width)
	statusBar := d.renderStatusBar(width)

	var body string
	switch {
	case d.update.Loading:
		body = lipgloss.Place(width, height-2, lipgloss.Center, lipgloss.Center,
			labelStyle.Italic(true).Render(spinnerFrame()+" Connecting to agent…"))
	case d.update.State == nil:
		body = lipgloss.Place(width, height-2, lipgloss.Center, lipgloss.Center,
			d.renderBanner())
	default:
		body = d.renderState(width, height-2)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}

func (d *DashboardPage) renderHeader(width int) string {
	title := sectionTitleStyle.Render("LaserSell Viewer")

	var agent string
	if st := d.update.State; st != nil {
		agent = fmt.Sprintf("%s (%s)", st.AgentID, networkName(st.Agent.Mainnet))
	} else if cred, ok := d.store.Get(); ok {
		agent = cred.AgentID
	}

	left := title
	if agent != "" {
		left += "  " + labelStyle.Render(agent)
	}
	right := d.renderStatusSegment()

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// renderStatusSegment is the colored connection indicator in the header.
func (d *DashboardPage) renderStatusSegment() string {
	now := time.Now()
	switch d.update.Status {
	case model.StatusLive:
		if st := d.update.State; st != nil && !st.SeenWithin(model.LivenessWindow, now) {
			return warnStyle.Render("● agent quiet " + formatAgo(st.LastSeenAt, now))
		}
		return gainStyle.Render("● live")
	case model.StatusDegraded:
		return warnStyle.Render("● degraded")
	case model.StatusUnauthorized:
		return errorStyle.Render("● unauthorized")
	case model.StatusLoading:
		return labelStyle.Render("● connecting")
	default:
		return labelStyle.Render("● idle")
	}
}

// renderBanner covers the no-snapshot cases: idle, unauthorized, and a
// degraded first poll.
func (d *DashboardPage) renderBanner() string {
	switch d.update.Status {
	case model.StatusUnauthorized:
		return errorStyle.Render("Session expired or revoked. Press enter to pair again.")
	case model.StatusDegraded:
		return warnStyle.Render("Cannot reach the agent: " + degradedText(d.update.Err) + "\nRetrying automatically — press r to retry now.")
	case model.StatusLive:
		// Connected, but the agent has not produced a snapshot yet.
		return labelStyle.Render("Connected. Waiting for the first snapshot…")
	default:
		return labelStyle.Render("Not paired. Press enter to pair with an agent.")
	}
}

func (d *DashboardPage) renderState(width, height int) string {
	st := d.update.State
	var rows []string

	// A stale snapshot stays on screen while the loop recovers.
	switch d.update.Status {
	case model.StatusDegraded:
		rows = append(rows, warnStyle.Render("⚠ Connection lost: "+degradedText(d.update.Err)+" — showing last data, r to retry now"))
	case model.StatusUnauthorized:
		rows = append(rows, errorStyle.Render("⚠ Session revoked — press enter to pair again"))
	}

	half := width/2 - 2
	if half < 30 {
		half = width - 2
	}

	balances := d.renderBalances(st, half)
	performance := d.renderPerformance(st, half)
	if half < width-2 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, balances, performance))
	} else {
		rows = append(rows, balances, performance)
	}

	chartHeight := height - lipgloss.Height(strings.Join(rows, "\n")) - 14
	if chartHeight > 12 {
		chartHeight = 12
	}
	if chartHeight >= 4 {
		chart := renderPnlChart(st.Telemetry.PnlHistory, width-4, chartHeight)
		if chart != "" {
			rows = append(rows, sectionStyle.Width(width-2).Render(
				sectionTitleStyle.Render("PnL")+"\n"+chart))
		}
	}

	rows = append(rows, d.renderSessions(st, width-2))
	rows = append(rows, d.renderTrades(st, width-2))
	rows = append(rows, d.renderRPC(st))

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (d *DashboardPage) renderBalances(st *model.ViewerState, width int) string {
	b := st.Telemetry.Balances
	lines := []string{
		sectionTitleStyle.Render("Balances"),
		fmt.Sprintf("%s %s  %s",
			labelStyle.Render("Wallet"),
			valueStyle.Render(formatSol(b.WalletLamports)),
			labelStyle.Render(formatFiat(b.WalletLamports, d.price.Rate, d.currency))),
		fmt.Sprintf("%s %s  %s",
			labelStyle.Render("Equity"),
			valueStyle.Render(formatSol(b.EquityLamports)),
			labelStyle.Render(formatFiat(b.EquityLamports, d.price.Rate, d.currency))),
	}
	return sectionStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (d *DashboardPage) renderPerformance(st *model.ViewerState, width int) string {
	perf := st.Agent.Performance
	lines := []string{
		sectionTitleStyle.Render("Performance"),
		fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Trades"),
			valueStyle.Render(fmt.Sprintf("%d", perf.TotalTrades)),
			labelStyle.Render("Win rate"),
			valueStyle.Render(formatWinRate(perf.WinRate))),
		fmt.Sprintf("%s %s SOL",
			labelStyle.Render("Realized"),
			pnlStyle(perf.RealizedPnlLamports).Render(formatSignedSol(perf.RealizedPnlLamports))),
	}
	return sectionStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (d *DashboardPage) renderSessions(st *model.ViewerState, width int) string {
	lines := []string{sectionTitleStyle.Render("Sessions")}
	if len(st.Telemetry.Sessions) == 0 {
		lines = append(lines, labelStyle.Render("no sessions"))
	}
	for _, sess := range st.Telemetry.Sessions {
		dot := sessionDot(sess.Status)
		lines = append(lines, fmt.Sprintf("%s %-14s %-8s %3d trades  %s SOL",
			dot,
			sess.ID,
			sess.Status,
			sess.TradeCount,
			pnlStyle(sess.PnlLamports).Render(formatSignedSol(sess.PnlLamports))))
	}
	return sectionStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func sessionDot(status string) string {
	switch status {
	case "running":
		return gainStyle.Render("●")
	case "errored":
		return errorStyle.Render("●")
	default:
		return labelStyle.Render("●")
	}
}

func (d *DashboardPage) renderTrades(st *model.ViewerState, width int) string {
	lines := []string{sectionTitleStyle.Render("Recent Trades")}
	if len(st.Agent.RecentTrades) == 0 {
		lines = append(lines, labelStyle.Render("no trades yet"))
	}
	maxRows := 8
	for i, tr := range st.Agent.RecentTrades {
		if i >= maxRows {
			lines = append(lines, labelStyle.Render(fmt.Sprintf("… %d more", len(st.Agent.RecentTrades)-maxRows)))
			break
		}
		lines = append(lines, fmt.Sprintf("%s  %-4s %-8s %s  %s  %s",
			labelStyle.Render(tr.ExecutedAt.Local().Format("15:04:05")),
			strings.ToUpper(tr.Side),
			tr.TokenSymbol,
			formatSol(tr.AmountLamports),
			pnlStyle(tr.PnlLamports).Render(formatSignedSol(tr.PnlLamports)),
			labelStyle.Render(shortSig(tr.Signature))))
	}
	return sectionStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (d *DashboardPage) renderRPC(st *model.ViewerState) string {
	rpc := st.Telemetry.RPC
	health := gainStyle.Render("healthy")
	if !rpc.Healthy {
		health = errorStyle.Render("unhealthy")
	}
	return labelStyle.Render("RPC ") + valueStyle.Render(rpc.Endpoint) +
		labelStyle.Render(fmt.Sprintf("  %.0fms  ", rpc.AvgLatencyMs)) + health
}

func (d *DashboardPage) renderStatusBar(width int) string {
	left := " r: retry • d: disconnect • c: currency • q: quit"

	right := "SOL —"
	if d.price.Rate > 0 {
		right = fmt.Sprintf("SOL %s", formatFiat(model.LamportsPerSol, d.price.Rate, d.currency))
	}
	if !d.updatedAt.IsZero() {
		if right != "" {
			right += "  "
		}
		right += "updated " + formatAgo(d.updatedAt, time.Now())
	}
	right += " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// degradedText turns a poll failure into a short, human explanation.
func degradedText(err error) string {
	if err == nil {
		return "request failed"
	}
	if apiErr, ok := telemetry.AsAPIError(err); ok {
		switch apiErr.Code {
		case telemetry.CodeTimeout:
			return "request timed out"
		case telemetry.CodeNetworkError:
			return "network error"
		default:
			if apiErr.Status >= 500 {
				return fmt.Sprintf("agent error (HTTP %d)", apiErr.Status)
			}
			if apiErr.Status == 429 {
				return "rate limited"
			}
		}
	}
	return err.Error()
}
