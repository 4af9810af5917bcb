package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/isp-support-bot/internal/audit"
	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/internal/pix"
	"github.com/wolfman30/isp-support-bot/internal/session"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const (
	testIdentity   = "5511999990000"
	testPixPayload = "00020101021226870014BR.GOV.BCB.PIX2565pix.example.com/v2/0123456789abcdef0123456789abcdef5204000053039865406110.005802BR"
)

type outbound struct {
	kind    string
	text    string
	menu    uazapi.Menu
	media   uazapi.Media
	pixType string
	pixKey  string
}

type fakeComposer struct {
	mu        sync.Mutex
	sent      []outbound
	failMenu  bool
	failMedia bool
}

func (c *fakeComposer) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, outbound{kind: "text", text: text})
	return nil
}

func (c *fakeComposer) SendMenu(_ context.Context, _ string, menu uazapi.Menu) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failMenu {
		return errors.New("menu not supported")
	}
	c.sent = append(c.sent, outbound{kind: "menu", text: menu.Text, menu: menu})
	return nil
}

func (c *fakeComposer) SendMedia(_ context.Context, _ string, media uazapi.Media) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failMedia {
		return errors.New("media rejected")
	}
	c.sent = append(c.sent, outbound{kind: "media", text: media.Text, media: media})
	return nil
}

func (c *fakeComposer) SendPixButton(_ context.Context, _ string, pixType, pixKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, outbound{kind: "pix", pixType: pixType, pixKey: pixKey})
	return nil
}

func (c *fakeComposer) count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if s.text == text {
			n++
		}
	}
	return n
}

func (c *fakeComposer) all() []outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outbound(nil), c.sent...)
}

func (c *fakeComposer) last() outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return outbound{}
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeComposer) menuContaining(fragment string) (uazapi.Menu, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sent {
		if s.kind == "menu" && strings.Contains(s.menu.Text, fragment) {
			return s.menu, true
		}
	}
	return uazapi.Menu{}, false
}

func (c *fakeComposer) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type fakeBackend struct {
	mu         sync.Mutex
	customers  map[string]*billing.Customer
	lookups    []string
	lookupErr  error
	services   []billing.Service
	bills      []billing.Bill
	billsErr   error
	methods    []billing.Method
	methodsErr error
	qr         pix.QRCode
	qrErr      error
	doc        billing.Document
	docErr     error
}

func (b *fakeBackend) LookupCustomerByTaxID(_ context.Context, value string) (*billing.Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = append(b.lookups, value)
	if b.lookupErr != nil {
		return nil, b.lookupErr
	}
	return b.customers[value], nil
}

func (b *fakeBackend) ListServices(context.Context, string) ([]billing.Service, error) {
	return b.services, nil
}

func (b *fakeBackend) ListBills(_ context.Context, _, _ string, page int) (billing.Page, error) {
	if b.billsErr != nil {
		return billing.Page{}, b.billsErr
	}
	if page > 1 {
		return billing.Page{}, nil
	}
	return billing.Page{Records: b.bills, TotalPages: 1}, nil
}

func (b *fakeBackend) ListPaymentMethods(context.Context, string, string, string) ([]billing.Method, error) {
	return b.methods, b.methodsErr
}

func (b *fakeBackend) GeneratePixInstrument(context.Context, string, string, string) (pix.QRCode, error) {
	return b.qr, b.qrErr
}

func (b *fakeBackend) GenerateBillDocument(context.Context, string, string, string) (billing.Document, error) {
	return b.doc, b.docErr
}

func (b *fakeBackend) lookupCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lookups)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Record(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type fakeObserver struct {
	mu          sync.Mutex
	transitions []string
	deliveries  []string
}

func (o *fakeObserver) ObserveTransition(from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from+"->"+to)
}

func (o *fakeObserver) ObserveDelivery(method, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliveries = append(o.deliveries, method+":"+status)
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func sampleBackend() *fakeBackend {
	return &fakeBackend{
		customers: map[string]*billing.Customer{
			"99988877766": {ID: "42", Name: "Maria da Silva"},
		},
		services: []billing.Service{{ID: "7", Type: "INTERNET"}},
		bills: []billing.Bill{
			{ID: "b-late", Amount: 11000},
			{ID: "b-feb", Amount: 8499, DueDate: day("2024-02-10"), Description: "Mensalidade Fevereiro"},
			{ID: "b-paid", Amount: 6999, DueDate: day("2024-01-10"), PaidAt: "2024-01-09"},
			{ID: "b-jan", Amount: 6999, DueDate: day("2024-01-10"), Kind: "Mensalidade", Reference: day("2024-01-01")},
		},
		methods: []billing.Method{billing.MethodPix, billing.MethodBoleto},
		qr:      pix.QRCode{Payload: testPixPayload, Image: "data:image/png;base64,iVBORw0KGgo"},
		doc:     billing.Document{Base64: "JVBERi0xLjQK"},
	}
}

type harness struct {
	engine   *Engine
	composer *fakeComposer
	store    *session.MemoryStore
	backend  *fakeBackend
	audit    *fakeAudit
	observer *fakeObserver
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	h := &harness{
		composer: &fakeComposer{},
		store:    session.NewMemoryStore(time.Hour, time.Minute, logging.Discard()),
		backend:  backend,
		audit:    &fakeAudit{},
		observer: &fakeObserver{},
	}
	cfg := Config{
		Sessions: h.store,
		Composer: h.composer,
		Audit:    h.audit,
		Observer: h.observer,
		Logger:   logging.Discard(),
		Brand:    "ZC NET",
	}
	if backend != nil {
		cfg.Backend = backend
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) text(t *testing.T, body string) {
	t.Helper()
	if err := h.engine.HandleInboundTurn(context.Background(), InboundEvent{Identity: testIdentity, Body: body}); err != nil {
		t.Fatalf("turn %q: %v", body, err)
	}
}

func (h *harness) click(t *testing.T, id string) {
	t.Helper()
	if err := h.engine.HandleInboundTurn(context.Background(), InboundEvent{Identity: testIdentity, ButtonID: id}); err != nil {
		t.Fatalf("click %q: %v", id, err)
	}
}

func (h *harness) session(t *testing.T) *session.Session {
	t.Helper()
	sess, err := h.store.Get(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return sess
}

func (h *harness) seed(t *testing.T, sess *session.Session) {
	t.Helper()
	if err := h.store.Set(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

// billingSession is a customer already past the CPF step with two unpaid bills.
func billingSession() *session.Session {
	return &session.Session{
		Identity:     testIdentity,
		State:        session.StateSelectingBill,
		CPF:          "99988877766",
		CustomerID:   "42",
		CustomerName: "Maria da Silva",
		ServiceID:    "7",
		ServiceType:  "INTERNET",
		Bills: []billing.Bill{
			{ID: "b-jan", Amount: 6999, DueDate: day("2024-01-10")},
			{ID: "b-feb", Amount: 8499, DueDate: day("2024-02-10")},
		},
	}
}
