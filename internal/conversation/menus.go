package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
)

// Replies sent as plain text.
const (
	msgAttendant       = "Em breve um atendente humano irá dar continuidade ao atendimento."
	msgPaymentDisabled = "❌ Serviço de pagamento temporariamente indisponível."
	msgAskCPF          = "Me informe seu CPF para consultar o pagamento.\n\nDigite apenas os números do CPF (11 dígitos):"
	msgInvalidCPF      = "❌ CPF inválido. Por favor, informe um CPF com 11 dígitos."
	msgLookingUp       = "🔍 Consultando informações..."
	msgCustomerMissing = "❌ Cliente não encontrado com este CPF.\n\nPor favor, verifique o CPF informado ou entre em contato com nosso atendimento."
	msgNoService       = "❌ Nenhum serviço encontrado para este cliente."
	msgNothingDue      = "✅ Nenhuma cobrança pendente encontrada.\n\nVocê está em dia! 🎉"
	msgLookupFailed    = "❌ Erro ao consultar pagamentos. Por favor, tente novamente mais tarde."
	msgInvalidOption   = "❌ Opção inválida. Por favor, escolha uma das opções disponíveis."
	msgMethodsFailed   = "❌ Erro ao carregar formas de pagamento."

	msgNoBillForPix   = "⚠️ Nenhuma cobrança disponível para gerar o PIX."
	msgGeneratingPix  = "⏳ Gerando o PIX..."
	msgPixFailed      = "❌ Erro ao gerar QR Code PIX. Por favor, tente novamente."
	msgPixUnusable    = "❌ Erro: Código PIX não encontrado ou inválido. Tente novamente."
	msgPixImageFailed = "❌ Erro ao enviar QR code PIX. Por favor, tente novamente."
	msgCopyPaste      = "👇 *Copie e cole, vá na opção do banco lá \"copia e cola\" e faz o pagamento na hora*"
	msgAfterPayment   = "✅ Após o pagamento sua rede será liberada automaticamente\n\n🔧 Caso não volte a conexão, reinicie os equipamentos"

	msgChooseBillFirst  = "❌ Por favor, escolha uma cobrança para gerar o boleto."
	msgGeneratingBoleto = "⏳ Gerando boleto..."
	msgBoletoFailed     = "❌ Erro ao gerar boleto. Por favor, tente novamente."
	msgBoletoMissing    = "❌ Erro: PDF do boleto não disponível. Por favor, tente novamente."
	msgBoletoSendFailed = "❌ Erro ao enviar boleto. Por favor, tente novamente."

	msgBackFallback = "\n💡 Digite *MENU* para voltar ao menu principal."
)

const (
	noDueDateList   = "Não informado"
	noDueDateButton = "Data não informada"
	// maxBillButtons is how many bills fit in one WhatsApp button message next to "back".
	maxBillButtons = 3
)

var backChoice = uazapi.Choice("Voltar ao Menu", "menu")

// menuSpec pairs an interactive menu with the plain text sent when the gateway rejects it.
type menuSpec struct {
	menu     uazapi.Menu
	fallback string
	// backAfterFallback appends the back-to-menu button after the fallback text.
	backAfterFallback bool
}

func buttons(text, footer string, choices ...string) uazapi.Menu {
	return uazapi.Menu{Type: uazapi.MenuButton, Text: text, FooterText: footer, Choices: choices}
}

func (e *Engine) mainMenu() menuSpec {
	m := buttons("Olá! Como posso ajudá-lo hoje?\n\nEscolha uma opção:",
		e.brand+" - Seu provedor de internet",
		uazapi.Choice("Pagamento", "fatura"),
		uazapi.Choice("🔧 Suporte Técnico", "suporte"),
		uazapi.Choice("👤 Falar com Atendente", "atendente"),
		uazapi.Choice("📦 Nossos Planos", "planos"),
	)
	m.ReadChat, m.ReadMessages = true, true
	return menuSpec{menu: m, fallback: "Olá! Como posso ajudá-lo hoje?\n\n" +
		"Digite o *número* da opção desejada:\n\n" +
		"*1* ou *fatura* - Pagamento\n" +
		"*2* ou *suporte* - 🔧 Suporte Técnico\n" +
		"*3* ou *atendente* - 👤 Falar com Atendente\n" +
		"*4* ou *planos* - 📦 Nossos Planos\n\n" +
		"_Digite MENU a qualquer momento para voltar_"}
}

func (e *Engine) backMenu() menuSpec {
	return menuSpec{
		menu:     buttons("Deseja voltar ao menu principal?", e.brand, backChoice),
		fallback: msgBackFallback,
	}
}

func (e *Engine) supportMenu() menuSpec {
	const text = "🔧 *Suporte Técnico*\n\nQual problema você está enfrentando?"
	return menuSpec{
		menu: buttons(text, e.brand,
			uazapi.Choice("🐌 Internet Lenta", "internet_lenta"),
			uazapi.Choice("📵 Sem Conexão", "sem_conexao"),
			uazapi.Choice("Já Paguei", "ja_paguei"),
			backChoice,
		),
		fallback:          text + "\n\n*1* - 🐌 Internet Lenta\n*2* - 📵 Sem Conexão\n*3* - Já Paguei\n*0* - Voltar ao Menu",
		backAfterFallback: true,
	}
}

// supportLeaf is a troubleshooting answer offering a human or the main menu.
func (e *Engine) supportLeaf(text string) menuSpec {
	return menuSpec{
		menu: buttons(text, e.brand,
			uazapi.Choice("👤 Falar com Atendente", "atendente"),
			uazapi.Choice("Voltar ao Menu Principal", "menu"),
		),
		fallback:          text + "\n\n*1* - 👤 Falar com Atendente\n*0* - Voltar ao Menu Principal",
		backAfterFallback: true,
	}
}

var supportLeaves = map[command]string{
	cmdSlowInternet: "🐌 *Internet Lenta*\n\nSiga as instruções abaixo:\n\n" +
		"Desligue e ligue os equipamentos, aguarde alguns minutos e teste a conexão.",
	cmdNoConnection: "📵 *Sem Conexão*\n\n*Verificações iniciais:*\n\n" +
		"Verifique se o roteador está ligado\nVeja se os LEDs estão piscando normalmente\nReinicie o roteador\n\n" +
		"Se não voltou sua conexão:",
	cmdAlreadyPaid: "*Já Paguei*\n\nSe você já realizou o pagamento, reinicie os equipamentos e espere 4 minutos.\n\n" +
		"Se não voltar sua conexão:",
}

// plan is one entry of the subscription catalogue.
type plan struct {
	icon     string
	title    string
	price    string
	benefits []string
}

var plans = map[command]plan{
	cmdPlan200: {icon: "💎", title: "*PLANO 200 MEGAS*", price: "69,99",
		benefits: []string{"⚡ 200 Megas de velocidade", "📶 Roteador incluso", "🆘 Suporte 24/7"}},
	cmdPlan300: {icon: "⭐", title: "*PLANO 300 MEGAS* 🏆 *MAIS POPULAR*", price: "84,99",
		benefits: []string{"⚡ 300 Megas de velocidade", "📶 Roteador incluso", "📺 TV + Filmes e Séries", "🆘 Suporte 24/7"}},
	cmdPlan500: {icon: "👑", title: "*PLANO 500 MEGAS*", price: "110,00",
		benefits: []string{"⚡ 500 Megas de velocidade", "📶 Roteador incluso", "📺 TV + Filmes e Séries", "🎬 Premiere incluso", "⭐ Suporte prioritário"}},
}

var planOrder = []command{cmdPlan200, cmdPlan300, cmdPlan500}

func (e *Engine) plansMenu() menuSpec {
	var b strings.Builder
	b.WriteString("📦 *NOSSOS PLANOS*\n\n")
	for _, cmd := range planOrder {
		p := plans[cmd]
		fmt.Fprintf(&b, "%s %s\n💰 A partir de R$ %s/mês\n%s\n\n", p.icon, p.title, p.price, strings.Join(p.benefits, "\n"))
	}
	b.WriteString("Escolha o plano ideal para você! 👇")
	text := b.String()

	m := buttons(text, e.brand+" - Sua conexão com o futuro",
		uazapi.Choice("💎 Assinar Plano 200", "assinar_200"),
		uazapi.Choice("⭐ Assinar Plano 300", "assinar_300"),
		uazapi.Choice("👑 Assinar Plano 500", "assinar_500"),
		backChoice,
	)
	m.ReadChat, m.ReadMessages = true, true
	return menuSpec{
		menu: m,
		fallback: text + "\n\n*Escolha uma opção:*\n*1* - ✅ Assinar Plano 200\n*2* - ✅ Assinar Plano 300\n" +
			"*3* - ✅ Assinar Plano 500\n*0* - Voltar ao Menu",
		backAfterFallback: true,
	}
}

func planConfirmation(p plan) string {
	return fmt.Sprintf("✅ *PLANO SELECIONADO*\n\n%s %s\n💰 Valor: R$ %s/mês\n\n📋 *Benefícios inclusos:*\n%s\n\n"+
		"⏳ Em breve um atendente entrará em contato para finalizar a contratação!",
		p.icon, p.title, p.price, strings.Join(p.benefits, "\n"))
}

// billsMenu lists every bill and offers the first few as buttons. Button ids carry the
// 0-based position in the sorted list.
func (e *Engine) billsMenu(heading, customerName, closing string, bills []billing.Bill) menuSpec {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n👤 *Cliente:* %s\n\n", heading, customerName)
	for i, bill := range bills {
		fmt.Fprintf(&b, "*%d.* %s\n   💵 R$ %s\n   Vencimento: %s\n\n",
			i+1, billDescription(bill), formatMoney(bill.Amount), formatDate(bill.DueDate, noDueDateList))
	}
	b.WriteString(closing)
	text := b.String()

	offered := bills[:min(len(bills), maxBillButtons)]
	choices := make([]string, 0, len(offered)+1)
	var fallback strings.Builder
	fallback.WriteString(text + "\n\n")
	for i, bill := range offered {
		label := fmt.Sprintf("R$ %s - Venc: %s", formatMoney(bill.Amount), formatDate(bill.DueDate, noDueDateButton))
		choices = append(choices, uazapi.Choice(label, fmt.Sprintf("%s%d", billChoicePrefix, i)))
		fmt.Fprintf(&fallback, "*%d* - Pagar %s\n", i+1, label)
	}
	choices = append(choices, backChoice)
	fallback.WriteString("*0* - Voltar ao Menu")

	return menuSpec{
		menu:              buttons(text, e.brand, choices...),
		fallback:          fallback.String(),
		backAfterFallback: true,
	}
}

// paymentMenu offers the methods the backend advertises, or both when it advertises none.
func (e *Engine) paymentMenu(customerName string, bill billing.Bill, methods []billing.Method) menuSpec {
	text := fmt.Sprintf("*Pagamento*\n\n👤 *Cliente:* %s\n*Cobrança:* %s\n*Valor:* R$ %s\n*Vencimento:* %s\n\nEscolha a forma de pagamento:",
		customerName, billDescription(bill), formatMoney(bill.Amount), formatDate(bill.DueDate, noDueDateButton))

	hasPix, hasBoleto := false, false
	for _, m := range methods {
		switch m {
		case billing.MethodPix:
			hasPix = true
		case billing.MethodBoleto:
			hasBoleto = true
		}
	}
	if !hasPix && !hasBoleto {
		hasPix, hasBoleto = true, true
	}
	var choices []string
	if hasPix {
		choices = append(choices, uazapi.Choice("Pagar com PIX", "pix"))
	}
	if hasBoleto {
		choices = append(choices, uazapi.Choice("📄 Gerar Boleto", "boleto"))
	}
	choices = append(choices, backChoice)

	return menuSpec{
		menu:              buttons(text, e.brand, choices...),
		fallback:          text + "\n\n*1* - Pagar com PIX\n*2* - 📄 Gerar Boleto\n*0* - Voltar ao Menu",
		backAfterFallback: true,
	}
}
