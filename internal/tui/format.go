package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/lasersell/viewer/internal/model"
)

// formatSol renders a lamport amount as SOL with four decimals, e.g. "◎5.0000".
func formatSol(lamports int64) string {
	return fmt.Sprintf("◎%.4f", float64(lamports)/model.LamportsPerSol)
}

// formatSignedSol is formatSol with an explicit sign, for pnl values.
func formatSignedSol(lamports int64) string {
	sol := float64(lamports) / model.LamportsPerSol
	return fmt.Sprintf("%+.4f", sol)
}

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// formatFiat converts a lamport amount to fiat at the given SOL rate.
// A zero rate means no quote has arrived yet.
func formatFiat(lamports int64, rate float64, currency string) string {
	if rate <= 0 {
		return ""
	}
	value := float64(lamports) / model.LamportsPerSol * rate
	if sym, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%.2f", sym, value)
	}
	return fmt.Sprintf("%.2f %s", value, strings.ToUpper(currency))
}

// formatAgo renders how long ago t was, coarsely.
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

// formatWinRate renders a 0..1 ratio as a whole percentage.
func formatWinRate(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}

// shortSig abbreviates a transaction signature for table display.
func shortSig(sig string) string {
	if len(sig) <= 8 {
		return sig
	}
	return sig[:8] + "…"
}

// networkName maps the mainnet flag to a display label.
func networkName(mainnet bool) string {
	if mainnet {
		return "mainnet"
	}
	return "devnet"
}
