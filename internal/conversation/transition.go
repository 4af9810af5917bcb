package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/isp-support-bot/internal/session"
)

// Action is what the engine must do with a free-text turn while a CPF is awaited.
type Action int

const (
	// ActionIgnore: the text does not look like a CPF. No reply.
	ActionIgnore Action = iota
	// ActionCancel: the customer changed topic. Drop the session and dispatch the text normally.
	ActionCancel
	// ActionRejectFormat: reply once that the CPF is malformed.
	ActionRejectFormat
	// ActionSilent: a repeat of an input already answered. No reply.
	ActionSilent
	// ActionResolve: look the CPF up.
	ActionResolve
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionCancel:
		return "cancel"
	case ActionRejectFormat:
		return "reject_format"
	case ActionSilent:
		return "silent"
	case ActionResolve:
		return "resolve"
	}
	return "unknown"
}

// Decision is the outcome of EvaluateCPFInput. CPF is set only for ActionResolve.
type Decision struct {
	Action Action
	CPF    string
}

const (
	cpfLength = 11
	// Up to two leading zeros may have been dropped by the customer.
	minPaddableDigits = 9
	maxNonDigitsInCPF = 2
)

// EvaluateCPFInput decides how to answer a free-text turn in the AWAITING_CPF state and
// returns the flags to store afterwards. It performs no I/O.
func EvaluateCPFInput(flags session.Flags, text string) (Decision, session.Flags) {
	text = strings.ToLower(strings.TrimSpace(text))
	if isTopicCommand(text) || IsGreeting(text) {
		return Decision{Action: ActionCancel}, flags
	}

	digits, rest := splitDigits(text)
	if digits == "" || utf8.RuneCountInString(strings.TrimSpace(rest)) > maxNonDigitsInCPF {
		return Decision{Action: ActionIgnore}, flags
	}
	cpf := digits
	if len(cpf) >= minPaddableDigits && len(cpf) < cpfLength {
		cpf = strings.Repeat("0", cpfLength-len(cpf)) + cpf
	}

	if len(cpf) != cpfLength {
		if flags.FormatErrorShown {
			return Decision{Action: ActionSilent}, flags
		}
		flags.FormatErrorShown = true
		flags.LastAttemptedCPF = ""
		return Decision{Action: ActionRejectFormat}, flags
	}

	if flags.LastAttemptedCPF != "" && flags.LastAttemptedCPF != cpf {
		return Decision{Action: ActionResolve, CPF: cpf}, session.Flags{LastAttemptedCPF: cpf}
	}
	if flags.NotFoundErrorShown && flags.LastAttemptedCPF == cpf {
		return Decision{Action: ActionSilent}, flags
	}
	flags.LastAttemptedCPF = cpf
	flags.FormatErrorShown = false
	return Decision{Action: ActionResolve, CPF: cpf}, flags
}

// splitDigits separates the ASCII digits of s from everything else.
func splitDigits(s string) (digits, rest string) {
	var d, r strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			d.WriteRune(c)
			continue
		}
		r.WriteRune(c)
	}
	return d.String(), r.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !unicode.IsDigit(c) || c > unicode.MaxASCII {
			return false
		}
	}
	return true
}
