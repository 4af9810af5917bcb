package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/isp-support-bot/internal/audit"
	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/internal/pix"
	"github.com/wolfman30/isp-support-bot/internal/session"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
)

const (
	defaultCustomerName = "Cliente"
	defaultServiceType  = "INTERNET"

	deliveryDelivered = "delivered"
	deliveryNoContent = "no_content"
	deliveryError     = "error"
)

// startPayment opens a fresh session awaiting the CPF. Any previous session is replaced.
func (e *Engine) startPayment(ctx context.Context, t *turn, prev *session.Session) {
	if e.backend == nil {
		t.say(ctx, msgPaymentDisabled)
		t.back(ctx)
		return
	}
	from := session.StateIdle
	if prev != nil {
		from = prev.State
	}
	sess := session.New(t.identity, e.now())
	t.save(ctx, sess)
	t.transition(from, session.StateAwaitingCPF)
	t.say(ctx, msgAskCPF)
}

func (e *Engine) resolveCustomer(ctx context.Context, t *turn, sess *session.Session, cpf string) {
	if e.backend == nil {
		t.say(ctx, msgPaymentDisabled)
		t.drop(ctx, sess)
		t.back(ctx)
		return
	}
	t.say(ctx, msgLookingUp)

	customer, err := e.resolver.Resolve(ctx, cpf)
	if err != nil {
		e.lookupFailed(ctx, t, sess, err)
		return
	}
	if customer == nil {
		// The session stays so that another CPF can be tried; the flags silence a repeat.
		sess.Flags.NotFoundErrorShown = true
		sess.Flags.FormatErrorShown = false
		t.save(ctx, sess)
		t.say(ctx, msgCustomerMissing)
		t.back(ctx)
		return
	}

	service, err := e.aggregator.FirstService(ctx, customer.ID)
	if errors.Is(err, ErrNotFound) {
		t.say(ctx, msgNoService)
		t.drop(ctx, sess)
		t.back(ctx)
		return
	}
	if err != nil {
		e.lookupFailed(ctx, t, sess, err)
		return
	}

	bills, err := e.aggregator.ListUnpaidBills(ctx, customer.ID, service.ID)
	if err != nil {
		e.lookupFailed(ctx, t, sess, err)
		return
	}
	if len(bills) == 0 {
		t.say(ctx, msgNothingDue)
		t.drop(ctx, sess)
		t.back(ctx)
		return
	}

	name := customer.Name
	if name == "" {
		name = defaultCustomerName
	}
	serviceType := service.Type
	if serviceType == "" {
		serviceType = defaultServiceType
	}
	from := sess.State
	*sess = session.Session{
		Identity:     t.identity,
		State:        session.StateSelectingBill,
		CPF:          cpf,
		CustomerID:   customer.ID,
		CustomerName: name,
		ServiceID:    service.ID,
		ServiceType:  serviceType,
		Bills:        bills,
	}
	t.save(ctx, sess)
	t.transition(from, session.StateSelectingBill)
	t.show(ctx, e.billsMenu("💰 *Cobranças Pendentes*", name, "Escolha uma opção para pagar:", bills))
}

func (e *Engine) lookupFailed(ctx context.Context, t *turn, sess *session.Session, err error) {
	t.logger.Warn("billing lookup failed", "error", err)
	t.say(ctx, msgLookupFailed)
	t.drop(ctx, sess)
	t.back(ctx)
}

// selectBill stores the bill at the 0-based index and offers the payment methods.
func (e *Engine) selectBill(ctx context.Context, t *turn, sess *session.Session, index int) {
	if sess == nil || len(sess.Bills) == 0 || e.backend == nil {
		if sess != nil {
			t.drop(ctx, sess)
		}
		e.startPayment(ctx, t, nil)
		return
	}
	bill, err := sess.SelectBill(index)
	if err != nil {
		t.logger.Info("bill selection out of range", "index", index, "bills", len(sess.Bills))
		t.say(ctx, msgInvalidOption)
		return
	}
	from := sess.State
	sess.State = session.StateSelectingPayment
	t.save(ctx, sess)
	t.transition(from, session.StateSelectingPayment)

	methods, err := e.backend.ListPaymentMethods(ctx, sess.CustomerID, sess.ServiceID, sess.ServiceType)
	if err != nil {
		t.logger.Warn("payment methods lookup failed", "error", err)
		t.say(ctx, msgMethodsFailed)
		t.drop(ctx, sess)
		t.back(ctx)
		return
	}
	t.show(ctx, e.paymentMenu(sess.CustomerName, bill, methods))
}

func (e *Engine) payWithPix(ctx context.Context, t *turn, sess *session.Session) {
	if e.backend == nil || sess == nil || sess.CustomerID == "" || sess.ServiceID == "" {
		if sess != nil {
			t.drop(ctx, sess)
		}
		e.startPayment(ctx, t, nil)
		return
	}
	if sess.BillID == "" && len(sess.Bills) > 1 {
		t.show(ctx, e.billsMenu("💰 *Escolha uma cobrança para pagar com PIX*", sess.CustomerName, "Escolha uma opção:", sess.Bills))
		return
	}
	if sess.BillID == "" && len(sess.Bills) == 1 {
		if _, err := sess.SelectBill(0); err == nil {
			from := sess.State
			sess.State = session.StateSelectingPayment
			t.save(ctx, sess)
			t.transition(from, session.StateSelectingPayment)
		}
	}
	bill, ok := sess.SelectedBill()
	if !ok {
		t.say(ctx, msgNoBillForPix)
		t.drop(ctx, sess)
		t.back(ctx)
		return
	}

	t.say(ctx, msgGeneratingPix)
	qr, err := e.backend.GeneratePixInstrument(ctx, sess.CustomerID, sess.ServiceID, bill.ID)
	if err != nil {
		t.logger.Warn("pix generation failed", "bill_id", bill.ID, "error", err)
		t.say(ctx, msgPixFailed)
		e.finish(ctx, t, sess, billing.MethodPix, deliveryError)
		return
	}
	if !qr.Usable() {
		t.logger.Warn("pix payload unusable", "bill_id", bill.ID, "error", ErrNoContent, "length", len(qr.Payload))
		t.say(ctx, msgPixUnusable)
		e.finish(ctx, t, sess, billing.MethodPix, deliveryNoContent)
		return
	}

	summary := fmt.Sprintf("*PIX Gerado com Sucesso!*\n\n💰 *Valor:* R$ %s", formatMoney(bill.Amount))
	if qr.Image != "" {
		caption := summary + "\n\n📱 *Escaneie o QR code acima para efetuar o pagamento*"
		if err := e.composer.SendMedia(ctx, t.identity, uazapi.Media{Type: uazapi.MediaImage, File: qr.Image, Text: caption}); err != nil {
			t.logger.Warn("pix qr image rejected", "error", err)
			t.say(ctx, msgPixImageFailed)
			e.finish(ctx, t, sess, billing.MethodPix, deliveryError)
			return
		}
	} else {
		t.say(ctx, summary)
	}
	t.say(ctx, msgCopyPaste)
	t.say(ctx, qr.Payload)

	instrument, decoded := pix.Decode(qr.Payload)
	if decoded {
		if err := e.composer.SendPixButton(ctx, t.identity, string(instrument.Kind), instrument.Key); err != nil {
			t.logger.Warn("pix button rejected", "kind", string(instrument.Kind), "error", err)
		}
	}
	t.say(ctx, msgAfterPayment)

	e.record(ctx, t, sess, bill, billing.MethodPix, string(instrument.Kind))
	e.finish(ctx, t, sess, billing.MethodPix, deliveryDelivered)
}

func (e *Engine) payWithBoleto(ctx context.Context, t *turn, sess *session.Session) {
	if sess == nil || e.backend == nil {
		e.startPayment(ctx, t, sess)
		return
	}
	if sess.BillID == "" && sess.State == session.StateSelectingBill {
		t.say(ctx, msgChooseBillFirst)
		return
	}
	bill, ok := sess.SelectedBill()
	if !ok || sess.CustomerID == "" || sess.ServiceID == "" {
		t.drop(ctx, sess)
		e.startPayment(ctx, t, nil)
		return
	}

	t.say(ctx, msgGeneratingBoleto)
	doc, err := e.backend.GenerateBillDocument(ctx, sess.CustomerID, sess.ServiceID, bill.ID)
	if err != nil {
		// The session is kept so the customer can retry without another CPF lookup.
		t.logger.Warn("boleto generation failed", "bill_id", bill.ID, "error", err)
		t.say(ctx, msgBoletoFailed)
		e.observeDelivery(billing.MethodBoleto, deliveryError)
		t.back(ctx)
		return
	}
	if doc.Empty() {
		t.say(ctx, msgBoletoMissing)
		e.finish(ctx, t, sess, billing.MethodBoleto, deliveryNoContent)
		return
	}
	media := uazapi.Media{Type: uazapi.MediaDocument, File: doc.File(), DocName: fmt.Sprintf("boleto_%s.pdf", bill.ID)}
	if err := e.composer.SendMedia(ctx, t.identity, media); err != nil {
		t.logger.Warn("boleto document rejected", "error", err)
		t.say(ctx, msgBoletoSendFailed)
		e.finish(ctx, t, sess, billing.MethodBoleto, deliveryError)
		return
	}
	t.say(ctx, fmt.Sprintf("📄 *Boleto Gerado!*\n\n💰 *Valor:* R$ %s\n\n%s", formatMoney(bill.Amount), msgAfterPayment))

	e.record(ctx, t, sess, bill, billing.MethodBoleto, "")
	e.finish(ctx, t, sess, billing.MethodBoleto, deliveryDelivered)
}

// finish ends the payment flow: the session is deleted and the customer gets the way back.
func (e *Engine) finish(ctx context.Context, t *turn, sess *session.Session, method billing.Method, status string) {
	t.drop(ctx, sess)
	e.observeDelivery(method, status)
	t.back(ctx)
}

func (e *Engine) observeDelivery(method billing.Method, status string) {
	if e.observer != nil {
		e.observer.ObserveDelivery(string(method), status)
	}
}

// record writes the audit entry. Failures are logged only.
func (e *Engine) record(ctx context.Context, t *turn, sess *session.Session, bill billing.Bill, method billing.Method, keyKind string) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, audit.Entry{
		Identity:    t.identity,
		CustomerID:  sess.CustomerID,
		ServiceID:   sess.ServiceID,
		BillID:      bill.ID,
		Method:      string(method),
		KeyKind:     keyKind,
		AmountCents: bill.Amount,
	})
	if err != nil {
		t.logger.Warn("audit record failed", "bill_id", bill.ID, "error", err)
	}
}
