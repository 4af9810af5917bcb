package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/isp-support-bot/internal/audit"
	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/internal/pix"
	"github.com/wolfman30/isp-support-bot/internal/session"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// InboundEvent is one customer turn, already normalized by the webhook adapter.
type InboundEvent struct {
	// Identity is the customer's phone number, digits only with the 55 prefix.
	Identity string
	Body     string
	// ButtonID is the id of the clicked menu choice. It wins over Body.
	ButtonID   string
	DedupKey   string
	SenderName string
}

// IsButton reports whether the turn is a menu click.
func (ev InboundEvent) IsButton() bool {
	return strings.TrimSpace(ev.ButtonID) != ""
}

// Text is the lower-cased input the engine dispatches on.
func (ev InboundEvent) Text() string {
	if ev.IsButton() {
		return strings.ToLower(strings.TrimSpace(ev.ButtonID))
	}
	return strings.ToLower(strings.TrimSpace(ev.Body))
}

// Composer sends outbound WhatsApp messages. *uazapi.Client satisfies it.
type Composer interface {
	SendText(ctx context.Context, identity, text string) error
	SendMenu(ctx context.Context, identity string, menu uazapi.Menu) error
	SendMedia(ctx context.Context, identity string, media uazapi.Media) error
	SendPixButton(ctx context.Context, identity, pixType, pixKey string) error
}

// Backend is the billing system. *ispbox.Client satisfies it.
type Backend interface {
	billing.Directory
	billing.Source
	ListPaymentMethods(ctx context.Context, customerID, serviceID, serviceType string) ([]billing.Method, error)
	GeneratePixInstrument(ctx context.Context, customerID, serviceID, billID string) (pix.QRCode, error)
	GenerateBillDocument(ctx context.Context, customerID, serviceID, billID string) (billing.Document, error)
}

// AuditLog records delivered payment instruments.
type AuditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Observer receives flow metrics.
type Observer interface {
	ObserveTransition(from, to string)
	ObserveDelivery(method, status string)
}

// Config wires an Engine. Backend may be nil, in which case the payment flow answers
// that payments are unavailable.
type Config struct {
	Sessions session.Store
	Composer Composer
	Backend  Backend
	Audit    AuditLog
	Observer Observer
	Logger   *logging.Logger
	Tracer   trace.Tracer
	Brand    string
	Now      func() time.Time
}

// Engine runs the menu and payment conversation for every customer.
type Engine struct {
	sessions   session.Store
	composer   Composer
	backend    Backend
	resolver   *billing.Resolver
	aggregator *billing.Aggregator
	audit      AuditLog
	observer   Observer
	logger     *logging.Logger
	tracer     trace.Tracer
	brand      string
	now        func() time.Time
}

// NewEngine builds an Engine from cfg. Sessions and Composer are required.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("conversation: session store is required")
	}
	if cfg.Composer == nil {
		return nil, errors.New("conversation: composer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("ispbot.internal.conversation")
	}
	brand := strings.TrimSpace(cfg.Brand)
	if brand == "" {
		brand = "ZC NET"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		sessions: cfg.Sessions,
		composer: cfg.Composer,
		backend:  cfg.Backend,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		logger:   logger.Component("conversation"),
		tracer:   tracer,
		brand:    brand,
		now:      now,
	}
	if cfg.Backend != nil {
		e.resolver = billing.NewResolver(cfg.Backend, logger)
		e.aggregator = billing.NewAggregator(cfg.Backend, logger)
	}
	return e, nil
}

// HandleInboundTurn processes one deduplicated customer turn to completion. The returned
// error reports session store or gateway failures; the customer has already been answered
// for every recoverable case.
func (e *Engine) HandleInboundTurn(ctx context.Context, ev InboundEvent) error {
	identity := strings.TrimSpace(ev.Identity)
	if identity == "" {
		return fmt.Errorf("%w: missing identity", ErrValidation)
	}
	button := ev.IsButton()
	ctx, span := e.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("conversation.identity", identity),
		attribute.Bool("conversation.button", button),
	))
	defer span.End()

	sess, err := e.sessions.Get(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load session")
		return fmt.Errorf("conversation: load session: %w", err)
	}

	t := &turn{engine: e, identity: identity, logger: e.logger.With("identity", identity, "event_id", ev.DedupKey)}
	e.dispatch(ctx, t, sess, ev.Text(), button)

	if t.err != nil {
		span.RecordError(t.err)
		span.SetStatus(codes.Error, "turn failed")
	}
	return t.err
}

func (e *Engine) dispatch(ctx context.Context, t *turn, sess *session.Session, text string, button bool) {
	if !button && sess != nil && sess.State == session.StateAwaitingCPF {
		decision, flags := EvaluateCPFInput(sess.Flags, text)
		t.logger.Debug("cpf input evaluated", "action", decision.Action.String())
		switch decision.Action {
		case ActionIgnore, ActionSilent:
			return
		case ActionRejectFormat:
			sess.Flags = flags
			t.save(ctx, sess)
			t.say(ctx, msgInvalidCPF)
			return
		case ActionResolve:
			sess.Flags = flags
			t.save(ctx, sess)
			e.resolveCustomer(ctx, t, sess, decision.CPF)
			return
		case ActionCancel:
			t.drop(ctx, sess)
			sess = nil
		}
	}

	if !button && IsGreeting(text) {
		t.show(ctx, e.mainMenu())
		return
	}
	// Numbered replies to the plain-text bill list.
	if !button && sess != nil && sess.State == session.StateSelectingBill && isDigits(text) {
		n, err := strconv.Atoi(text)
		if err != nil {
			n = 0
		}
		e.selectBill(ctx, t, sess, n-1)
		return
	}
	if !button && !isTopicCommand(text) {
		return
	}

	cmd := classify(text, button)
	if cmd == cmdPayment && text == "boleto" && inBillingStage(sess) {
		cmd = cmdBoleto
	}
	switch cmd {
	case cmdMenu:
		t.show(ctx, e.mainMenu())
	case cmdPayment:
		e.startPayment(ctx, t, sess)
	case cmdSupport:
		t.show(ctx, e.supportMenu())
	case cmdSlowInternet, cmdNoConnection, cmdAlreadyPaid:
		t.show(ctx, e.supportLeaf(supportLeaves[cmd]))
	case cmdAttendant:
		t.say(ctx, msgAttendant)
		t.back(ctx)
	case cmdPlans:
		t.show(ctx, e.plansMenu())
	case cmdPlan200, cmdPlan300, cmdPlan500:
		t.say(ctx, planConfirmation(plans[cmd]))
		t.back(ctx)
	case cmdSelectBill:
		index, err := strconv.Atoi(strings.TrimPrefix(text, billChoicePrefix))
		if err != nil {
			index = -1
		}
		e.selectBill(ctx, t, sess, index)
	case cmdPix:
		e.payWithPix(ctx, t, sess)
	case cmdBoleto:
		e.payWithBoleto(ctx, t, sess)
	}
}

func inBillingStage(sess *session.Session) bool {
	return sess != nil && (sess.State == session.StateSelectingBill || sess.State == session.StateSelectingPayment)
}

// turn carries the per-turn outbound helpers and remembers the first unhandled failure.
type turn struct {
	engine   *Engine
	identity string
	logger   *logging.Logger
	err      error
}

func (t *turn) fail(err error) {
	if err == nil {
		return
	}
	t.logger.Error("conversation turn error", "error", err)
	if t.err == nil {
		t.err = err
	}
}

func (t *turn) say(ctx context.Context, text string) bool {
	if err := t.engine.composer.SendText(ctx, t.identity, text); err != nil {
		t.fail(fmt.Errorf("conversation: send text: %w", err))
		return false
	}
	return true
}

// show sends an interactive menu, falling back to plain text when the gateway rejects it.
func (t *turn) show(ctx context.Context, spec menuSpec) {
	err := t.engine.composer.SendMenu(ctx, t.identity, spec.menu)
	if err == nil {
		return
	}
	t.logger.Warn("menu rejected, sending text fallback", "error", err)
	if !t.say(ctx, spec.fallback) {
		return
	}
	if spec.backAfterFallback {
		t.back(ctx)
	}
}

func (t *turn) back(ctx context.Context) {
	t.show(ctx, t.engine.backMenu())
}

func (t *turn) save(ctx context.Context, sess *session.Session) {
	if err := t.engine.sessions.Set(ctx, sess); err != nil {
		t.fail(fmt.Errorf("conversation: save session: %w", err))
	}
}

// drop deletes the session, returning the customer to IDLE.
func (t *turn) drop(ctx context.Context, sess *session.Session) {
	if err := t.engine.sessions.Delete(ctx, t.identity); err != nil {
		t.fail(fmt.Errorf("conversation: delete session: %w", err))
	}
	if sess != nil {
		t.transition(sess.State, session.StateIdle)
	}
}

func (t *turn) transition(from, to session.State) {
	if from == to {
		return
	}
	t.logger.Info("conversation state changed", "from", string(from), "state", string(to))
	if t.engine.observer != nil {
		t.engine.observer.ObserveTransition(string(from), string(to))
	}
}
