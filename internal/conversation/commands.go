package conversation

import (
	"regexp"
	"slices"
	"strings"
)

type command int

const (
	cmdNone command = iota
	cmdMenu
	cmdPayment
	cmdSupport
	cmdSlowInternet
	cmdNoConnection
	cmdAlreadyPaid
	cmdAttendant
	cmdPlans
	cmdPlan200
	cmdPlan300
	cmdPlan500
	cmdSelectBill
	cmdPix
	cmdBoleto
)

const billChoicePrefix = "cobranca_"

var (
	menuWords      = []string{"menu", "inicio", "voltar ao menu"}
	paymentWords   = []string{"fatura", "boleto", "pagamento"}
	supportWords   = []string{"suporte", "suporte técnico", "suporte tecnico", "abrir chamado", "chamado"}
	attendantWords = []string{"atendente", "falar com atendente", "atendimento"}
	plansWords     = []string{"planos", "nossos planos", "planos disponíveis", "preços"}

	// topicWords are the only free-text keywords the bot answers. They also cancel a pending CPF request.
	topicWords = slices.Concat(menuWords, attendantWords, supportWords, paymentWords, plansWords)

	// buttonCommands are reachable only through menu clicks.
	buttonCommands = map[string]command{
		"internet_lenta": cmdSlowInternet, "internet lenta": cmdSlowInternet, "lenta": cmdSlowInternet,
		"sem_conexao": cmdNoConnection, "sem conexão": cmdNoConnection, "sem conexao": cmdNoConnection, "sem internet": cmdNoConnection,
		"ja_paguei": cmdAlreadyPaid, "já paguei": cmdAlreadyPaid, "ja paguei": cmdAlreadyPaid, "paguei": cmdAlreadyPaid,
		"assinar_200": cmdPlan200, "assinar plano 200": cmdPlan200, "plano 200": cmdPlan200,
		"assinar_300": cmdPlan300, "assinar plano 300": cmdPlan300, "plano 300": cmdPlan300,
		"assinar_500": cmdPlan500, "assinar plano 500": cmdPlan500, "plano 500": cmdPlan500,
		"pix": cmdPix,
	}

	greetings = []string{
		"oi", "oii", "oiii", "olá", "ola",
		"bom dia", "bomdia", "bom diaa", "bomdiaa",
		"boa tarde", "boatarde",
		"boa noite", "boanoite",
		"e aí", "e ai", "eae", "e aê",
		"opa", "eita", "salve",
		"fala", "fala aí", "fala ai",
	}
	greetingPattern = buildGreetingPattern(greetings)
)

func buildGreetingPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?:^|\s)(?:` + strings.Join(quoted, "|") + `)(?:\s|!|\?|$|\.|,|:)`)
}

// IsGreeting reports whether text contains a greeting as a standalone word, anywhere in the sentence.
func IsGreeting(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	return greetingPattern.MatchString(text)
}

// isTopicCommand reports whether text is a known keyword, alone or followed by more words.
func isTopicCommand(text string) bool {
	for _, w := range topicWords {
		if text == w || strings.HasPrefix(text, w+" ") {
			return true
		}
	}
	return false
}

// classify maps a normalized turn to a command. Free text only matches exact keywords;
// button ids also reach the sub-menu and payment commands.
func classify(text string, button bool) command {
	switch {
	case slices.Contains(menuWords, text):
		return cmdMenu
	case slices.Contains(paymentWords, text) || (button && strings.HasPrefix(text, "1")):
		return cmdPayment
	case slices.Contains(supportWords, text) || (button && strings.HasPrefix(text, "2")):
		return cmdSupport
	}
	if button {
		if cmd, ok := buttonCommands[text]; ok {
			return cmd
		}
		if strings.HasPrefix(text, billChoicePrefix) {
			return cmdSelectBill
		}
	}
	switch {
	case slices.Contains(attendantWords, text):
		return cmdAttendant
	case slices.Contains(plansWords, text):
		return cmdPlans
	}
	return cmdNone
}
