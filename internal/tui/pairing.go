package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/telemetry"
)

// Pairer exchanges a pairing code for a viewer credential.
type Pairer interface {
	Pair(ctx context.Context, code string) (telemetry.PairResult, error)
}

// CredentialSaver persists the credential obtained by pairing.
type CredentialSaver interface {
	Set(model.Credential) error
}

type pairedMsg struct{ cred model.Credential }

type pairFailedMsg struct{ err error }

// PairingPage asks for the pairing code displayed by the agent and
// exchanges it for a viewer credential.
type PairingPage struct {
	client Pairer
	store  CredentialSaver
	keys   KeyMap

	input  textinput.Model
	busy   bool
	errMsg string
}

// NewPairingPage creates the pairing screen.
func NewPairingPage(client Pairer, store CredentialSaver) *PairingPage {
	input := textinput.New()
	input.Placeholder = "6-digit pairing code"
	input.CharLimit = 12
	input.Width = 24
	input.Focus()

	return &PairingPage{
		client: client,
		store:  store,
		keys:   DefaultKeyMap(),
		input:  input,
	}
}

func (p *PairingPage) ID() string { return PagePairing }

func (p *PairingPage) Init() tea.Cmd {
	p.busy = false
	p.input.Focus()
	return textinput.Blink
}

func (p *PairingPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if p.busy {
			return nil, nil
		}
		if key.Matches(msg, p.keys.Enter) {
			code := strings.TrimSpace(p.input.Value())
			if code == "" {
				p.errMsg = "Enter the pairing code shown by your agent."
				return nil, nil
			}
			p.busy = true
			p.errMsg = ""
			return tea.Batch(p.pairCmd(code), spinnerTick()), nil
		}

	case spinnerTickMsg:
		if p.busy {
			return spinnerTick(), nil
		}
		return nil, nil

	case pairedMsg:
		p.busy = false
		if err := p.store.Set(msg.cred); err != nil {
			p.errMsg = "Paired, but saving the credential failed: " + err.Error()
			return nil, nil
		}
		p.input.Reset()
		return nil, &PageNav{PageID: PageDashboard}

	case pairFailedMsg:
		p.busy = false
		p.errMsg = pairErrorText(msg.err)
		return nil, nil
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return cmd, nil
}

func (p *PairingPage) pairCmd(code string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := p.client.Pair(ctx, code)
		if err != nil {
			return pairFailedMsg{err: err}
		}
		return pairedMsg{cred: model.Credential{
			AgentID:     result.AgentID,
			ViewerToken: result.ViewerToken,
			ExpiresAt:   result.ExpiresAt,
		}}
	}
}

// pairErrorText turns a pairing failure into a one-line instruction.
func pairErrorText(err error) string {
	if apiErr, ok := telemetry.AsAPIError(err); ok {
		switch apiErr.Code {
		case telemetry.CodeInvalidPairingCode:
			return "That code was rejected. Codes expire quickly; generate a fresh one on the agent."
		case telemetry.CodeTimeout, telemetry.CodeNetworkError:
			return "Cannot reach the agent. Check that it is running and the address is right."
		}
	}
	return "Pairing failed: " + err.Error()
}

func (p *PairingPage) View(width, height int) string {
	title := sectionTitleStyle.Render("LaserSell Viewer")
	subtitle := labelStyle.Render("Pair with your trading agent")

	var status string
	switch {
	case p.busy:
		status = labelStyle.Render(spinnerFrame() + " Pairing…")
	case p.errMsg != "":
		status = errorStyle.Render(p.errMsg)
	}

	help := labelStyle.Render("enter: pair • ctrl+c: quit")

	box := sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		"",
		p.input.View(),
		"",
		status,
		help,
	))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
