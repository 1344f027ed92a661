package tui

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/telemetry"
)

type fakePairer struct {
	result telemetry.PairResult
	err    error
	codes  []string
}

func (f *fakePairer) Pair(_ context.Context, code string) (telemetry.PairResult, error) {
	f.codes = append(f.codes, code)
	return f.result, f.err
}

type fakeSaver struct {
	saved []model.Credential
	err   error
}

func (f *fakeSaver) Set(cred model.Credential) error {
	f.saved = append(f.saved, cred)
	return f.err
}

func TestPairingSuccessSavesAndNavigates(t *testing.T) {
	pairer := &fakePairer{result: telemetry.PairResult{
		AgentID:     "agent-1",
		ViewerToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	saver := &fakeSaver{}
	page := NewPairingPage(pairer, saver)

	page.input.SetValue("123456")
	cmd, nav := page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if nav != nil {
		t.Fatal("navigated before pairing finished")
	}

	// The batch carries the pair command and a spinner tick; drive the
	// page with the real pairing result directly.
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	msg := page.pairCmd("123456")()
	paired, ok := msg.(pairedMsg)
	if !ok {
		t.Fatalf("msg = %T, want pairedMsg", msg)
	}

	_, nav = page.Update(paired)
	if nav == nil || nav.PageID != PageDashboard {
		t.Fatalf("nav = %+v, want dashboard", nav)
	}
	if len(saver.saved) == 0 || saver.saved[0].AgentID != "agent-1" || saver.saved[0].ViewerToken != "tok" {
		t.Fatalf("saved = %+v", saver.saved)
	}
}

func TestPairingRejectedCodeShowsGuidance(t *testing.T) {
	pairer := &fakePairer{err: &telemetry.APIError{
		Status: http.StatusBadRequest,
		Code:   telemetry.CodeInvalidPairingCode,
	}}
	page := NewPairingPage(pairer, &fakeSaver{})

	page.input.SetValue("000000")
	page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	page.Update(page.pairCmd("000000")())

	view := page.View(80, 24)
	if !strings.Contains(view, "rejected") {
		t.Errorf("view lacks rejection guidance:\n%s", view)
	}
	if page.busy {
		t.Error("page stuck busy after failure")
	}
}

func TestPairingNetworkErrorShowsGuidance(t *testing.T) {
	pairer := &fakePairer{err: &telemetry.APIError{Code: telemetry.CodeNetworkError}}
	page := NewPairingPage(pairer, &fakeSaver{})

	page.input.SetValue("123456")
	page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	page.Update(page.pairCmd("123456")())

	if view := page.View(80, 24); !strings.Contains(view, "Cannot reach the agent") {
		t.Error("view lacks connectivity guidance")
	}
}

func TestPairingEmptyCodeRejectedLocally(t *testing.T) {
	pairer := &fakePairer{}
	page := NewPairingPage(pairer, &fakeSaver{})

	page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(pairer.codes) != 0 {
		t.Fatal("empty code sent to the agent")
	}
	if page.errMsg == "" {
		t.Fatal("no local validation message")
	}
}

func TestPairingIgnoresKeysWhileBusy(t *testing.T) {
	pairer := &fakePairer{}
	page := NewPairingPage(pairer, &fakeSaver{})

	page.input.SetValue("123456")
	page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !page.busy {
		t.Fatal("page not busy after submit")
	}

	page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(pairer.codes) != 0 {
		// pairCmd only runs when the returned command executes; a second
		// enter while busy must not queue another attempt.
		t.Fatal("second attempt queued while busy")
	}
}
