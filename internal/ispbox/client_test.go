package ispbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

type fakeBackend struct {
	t          *testing.T
	mux        *http.ServeMux
	tokenCalls atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	fb := &fakeBackend{t: t, mux: http.NewServeMux()}
	fb.mux.HandleFunc("POST /api/v2/auth/token/ispbox", func(w http.ResponseWriter, r *http.Request) {
		fb.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("unexpected token form %v", r.Form)
		}
		if r.Header.Get("X-Request-ID") != "ispbox" {
			t.Errorf("missing request id header")
		}
		w.Write(mustLoadFixture(t, "token_success.json"))
	})
	return fb
}

func (fb *fakeBackend) handle(pattern string, fn http.HandlerFunc) {
	fb.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			fb.t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fn(w, r)
	})
}

func newTestClient(t *testing.T, fb *fakeBackend) *Client {
	t.Helper()
	server := httptest.NewServer(fb.mux)
	t.Cleanup(server.Close)
	client, err := New(Config{
		BaseURL:      server.URL + "/",
		ClientID:     "client",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
		Logger:       logging.Discard(),
	})
	if err != nil {
		t.Errorf("new client: %v", err)
	}
	return client
}

func mustLoadFixture(t *testing.T, name string) []byte {
	t.Helper()
	_, filename, _, _ := runtime.Caller(0)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(filename), "testdata", name))
	if err != nil {
		t.Errorf("read fixture %s: %v", name, err)
	}
	return data
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{ClientSecret: "s"}); err == nil {
		t.Errorf("expected base url validation error")
	}
	if _, err := New(Config{BaseURL: "https://isp.example.com"}); err == nil {
		t.Errorf("expected client secret validation error")
	}
	client, err := New(Config{BaseURL: "https://isp.example.com/", ClientSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "https://isp.example.com", client.baseURL)
	assert.Equal(t, 20*time.Second, client.httpClient.Timeout)
}

func TestLookupCustomerByTaxID(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pesquisa") {
		case "99988877766":
			w.Write(mustLoadFixture(t, "customers_found.json"))
		case "broken":
			w.Write([]byte(`{"status":"error","message":"pesquisa invalida"}`))
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	})
	client := newTestClient(t, fb)
	ctx := context.Background()

	customer, err := client.LookupCustomerByTaxID(ctx, "99988877766")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "1042", customer.ID)
	assert.Equal(t, "Maria da Silva", customer.Name)

	missing, err := client.LookupCustomerByTaxID(ctx, "12345678901")
	require.NoError(t, err)
	assert.Nil(t, missing)

	errored, err := client.LookupCustomerByTaxID(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, errored)

	assert.Equal(t, int32(1), fb.tokenCalls.Load(), "token should be cached across calls")
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	client := newTestClient(t, fb)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	_, err := client.LookupCustomerByTaxID(context.Background(), "1")
	require.NoError(t, err)
	now = now.Add(3499 * time.Second)
	_, err = client.LookupCustomerByTaxID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fb.tokenCalls.Load())

	now = now.Add(2 * time.Second)
	_, err = client.LookupCustomerByTaxID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fb.tokenCalls.Load())
}

func TestListServicesFallsBackToAllTypes(t *testing.T) {
	fb := newFakeBackend(t)
	var calls atomic.Int32
	fb.handle("GET /api/v2/clientes/1042/servicos", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("tipoServico") == "INTERNET" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.Write([]byte(`[{"id":7,"tipo":"TELEFONE"}]`))
	})
	client := newTestClient(t, fb)

	services, err := client.ListServices(context.Background(), "1042")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "7", services[0].ID)
	assert.Equal(t, "TELEFONE", services[0].Type)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListBillsParsesPages(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes/1042/servicos/7/cobrancas", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tipoServico") != "INTERNET" || q.Get("limite") != "100" {
			t.Errorf("unexpected query %v", q)
		}
		switch q.Get("pagina") {
		case "1":
			w.Write(mustLoadFixture(t, "bills_page1.json"))
		default:
			w.Write(mustLoadFixture(t, "bills_page2.json"))
		}
	})
	client := newTestClient(t, fb)
	ctx := context.Background()

	page, err := client.ListBills(ctx, "1042", "7", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Records, 2)
	first := page.Records[0]
	assert.Equal(t, "501", first.ID)
	assert.Equal(t, int64(8499), first.Amount)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, "2024-02-10", first.DueDate.Format("2006-01-02"))
	assert.True(t, first.Unpaid())
	assert.Equal(t, int64(6999), page.Records[1].Amount)
	assert.False(t, page.Records[1].Unpaid())

	page2, err := client.ListBills(ctx, "1042", "7", 2)
	require.NoError(t, err)
	require.Len(t, page2.Records, 1)
	third := page2.Records[0]
	assert.Equal(t, int64(11000), third.Amount)
	assert.Empty(t, third.Description, "N/A is treated as missing")
	assert.Equal(t, "Mensalidade", third.Kind)
	require.NotNil(t, third.Reference)
	assert.True(t, third.Unpaid())

	agg := billing.NewAggregator(client, logging.Discard())
	unpaid, err := agg.ListUnpaidBills(ctx, "1042", "7")
	require.NoError(t, err)
	require.Len(t, unpaid, 2)
	assert.Equal(t, "501", unpaid[0].ID)
	assert.Equal(t, "503", unpaid[1].ID)
}

func TestListPaymentMethods(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes/1042/servicos/7/cobrancas/pagamento/formas", func(w http.ResponseWriter, r *http.Request) {
		w.Write(mustLoadFixture(t, "payment_methods.json"))
	})
	client := newTestClient(t, fb)

	methods, err := client.ListPaymentMethods(context.Background(), "1042", "7", "")
	require.NoError(t, err)
	assert.Equal(t, []billing.Method{billing.MethodPix, billing.MethodBoleto}, methods)
}

func TestGeneratePixInstrument(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("POST /api/v2/clientes/1042/servicos/7/cobrancas/501/pagamento/qrcode/gerar", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tipo") != "PIX" {
			t.Errorf("expected tipo=PIX")
		}
		w.Write(mustLoadFixture(t, "qrcode_success.json"))
	})
	client := newTestClient(t, fb)

	qr, err := client.GeneratePixInstrument(context.Background(), "1042", "7", "501")
	require.NoError(t, err)
	assert.True(t, qr.Usable())
	assert.Contains(t, qr.Image, "data:image/png;base64,")
}

func TestGenerateBillDocument(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes/1042/servicos/7/cobrancas/501/pagamento/pdf", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("formato") != "base64" {
			t.Errorf("expected formato=base64")
		}
		w.Write([]byte(`{"data":{"base64":"JVBERi0xLjQK"}}`))
	})
	fb.handle("GET /api/v2/clientes/1042/servicos/7/cobrancas/502/pagamento/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"url":"https://isp.example.com/boleto/502.pdf"}}`))
	})
	client := newTestClient(t, fb)
	ctx := context.Background()

	doc, err := client.GenerateBillDocument(ctx, "1042", "7", "501")
	require.NoError(t, err)
	assert.Equal(t, "data:application/pdf;base64,JVBERi0xLjQK", doc.File())

	doc, err = client.GenerateBillDocument(ctx, "1042", "7", "502")
	require.NoError(t, err)
	assert.Equal(t, "https://isp.example.com/boleto/502.pdf", doc.File())
}

func TestServerErrorIsDownstreamUnavailable(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/v2/clientes/1042/servicos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream down"}`))
	})
	client := newTestClient(t, fb)

	_, err := client.ListServices(context.Background(), "1042")
	require.Error(t, err)
	assert.True(t, errors.Is(err, billing.ErrDownstreamUnavailable))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	fb := newFakeBackend(t)
	var calls atomic.Int32
	fb.handle("GET /api/v2/clientes", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})
	client := newTestClient(t, fb)
	ctx := context.Background()

	_, err := client.LookupCustomerByTaxID(ctx, "1")
	require.Error(t, err)
	_, err = client.LookupCustomerByTaxID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fb.tokenCalls.Load())
}

func TestCents(t *testing.T) {
	cases := map[string]int64{
		"69.99":    6999,
		"69,99":    6999,
		"1.234,56": 123456,
		"R$ 84,99": 8499,
		"110":      11000,
		"abc":      0,
	}
	for in, want := range cases {
		assert.Equal(t, want, cents(in), in)
	}
	assert.Equal(t, int64(8499), cents(84.99))
	assert.Equal(t, int64(0), cents(nil))
}
