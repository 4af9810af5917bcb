package conversation

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wolfman30/isp-support-bot/internal/billing"
)

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// formatMoney renders cents with a decimal comma, e.g. 8499 -> "84,99".
func formatMoney(cents int64) string {
	return message.NewPrinter(language.BrazilianPortuguese).Sprintf("%.2f", float64(cents)/100)
}

func formatDate(t *time.Time, missing string) string {
	if t == nil {
		return missing
	}
	return t.Format("02/01/2006")
}

// monthYear renders "Março de 2024". A Caser must not be shared between goroutines.
func monthYear(t time.Time) string {
	return cases.Title(language.BrazilianPortuguese).String(monthNames[t.Month()-1]) + " de " + t.Format("2006")
}

// billDescription falls back to the bill kind and reference month when the backend sent none.
func billDescription(b billing.Bill) string {
	if b.Description != "" {
		return b.Description
	}
	if b.Reference != nil {
		kind := b.Kind
		if kind == "" {
			kind = "Mensalidade"
		}
		return kind + " - " + monthYear(*b.Reference)
	}
	if b.Kind != "" {
		return b.Kind
	}
	return "Cobrança"
}
