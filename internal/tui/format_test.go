package tui

import (
	"testing"
	"time"
)

func TestFormatSol(t *testing.T) {
	tests := []struct {
		lamports int64
		want     string
	}{
		{5_000_000_000, "◎5.0000"},
		{0, "◎0.0000"},
		{123_456_789, "◎0.1235"},
		{-250_000_000, "◎-0.2500"},
	}
	for _, tt := range tests {
		if got := formatSol(tt.lamports); got != tt.want {
			t.Errorf("formatSol(%d) = %q, want %q", tt.lamports, got, tt.want)
		}
	}
}

func TestFormatSignedSol(t *testing.T) {
	if got := formatSignedSol(10_000_000); got != "+0.0100" {
		t.Errorf("positive pnl = %q", got)
	}
	if got := formatSignedSol(-20_000_000); got != "-0.0200" {
		t.Errorf("negative pnl = %q", got)
	}
}

func TestFormatFiat(t *testing.T) {
	tests := []struct {
		name     string
		lamports int64
		rate     float64
		currency string
		want     string
	}{
		{"usd", 5_000_000_000, 150, "usd", "$750.00"},
		{"eur symbol", 1_000_000_000, 135, "eur", "€135.00"},
		{"unknown currency", 1_000_000_000, 100, "chf", "100.00 CHF"},
		{"no quote yet", 1_000_000_000, 0, "usd", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatFiat(tt.lamports, tt.rate, tt.currency); got != tt.want {
				t.Errorf("formatFiat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-500 * time.Millisecond), "just now"},
		{now.Add(-8 * time.Second), "8s ago"},
		{now.Add(-3 * time.Minute), "3m ago"},
		{now.Add(-26 * time.Hour), "26h ago"},
	}
	for _, tt := range tests {
		if got := formatAgo(tt.at, now); got != tt.want {
			t.Errorf("formatAgo(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestShortSig(t *testing.T) {
	if got := shortSig("abcdef1234567890"); got != "abcdef12…" {
		t.Errorf("shortSig = %q", got)
	}
	if got := shortSig("short"); got != "short" {
		t.Errorf("shortSig = %q", got)
	}
}

func TestNetworkName(t *testing.T) {
	if networkName(true) != "mainnet" || networkName(false) != "devnet" {
		t.Fatal("network labels wrong")
	}
}
