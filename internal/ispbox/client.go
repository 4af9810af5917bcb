package ispbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/isp-support-bot/internal/billing"
	"github.com/wolfman30/isp-support-bot/internal/pix"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const (
	defaultRequestID = "ispbox"
	defaultUserAgent = "isp-support-bot/0.1"
	// The backend issues hour-long tokens; refresh slightly earlier.
	tokenLifetime = 3500 * time.Second
	billsPerPage  = 100
	serviceFilter = "INTERNET"
)

var scopes = strings.Join([]string{
	"clientes.ler",
	"clientes.servicos.ler",
	"clientes.servicos.cobrancas.ler",
	"clientes.servicos.cobrancas.pagamento.formas.ler",
	"clientes.servicos.cobrancas.pagamento.pdf.gerar",
	"clientes.servicos.cobrancas.pagamento.qrcode.gerar",
}, " ")

// Observer receives per-call latency. The metrics package satisfies it.
type Observer interface {
	ObserveBackendCall(operation, status string, seconds float64)
}

// Config controls how the ISPBOX client behaves.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	MaxRetries   int
	Backoff      time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
	Observer     Observer
	UserAgent    string
}

// Client wraps the ISPBOX v2 endpoints used by the payment flow.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	maxRetries   int
	backoff      time.Duration
	logger       *logging.Logger
	observer     Observer
	userAgent    string
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ispbox: base URL is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("ispbox: client secret is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		maxRetries:   maxRetries,
		backoff:      backoff,
		logger:       logger,
		observer:     cfg.Observer,
		userAgent:    userAgent,
		now:          time.Now,
	}, nil
}

// LookupCustomerByTaxID searches customers by a tax id fragment. A miss, including an
// error-status body, is (nil, nil).
func (c *Client) LookupCustomerByTaxID(ctx context.Context, value string) (*billing.Customer, error) {
	q := url.Values{}
	q.Set("pesquisa", value)
	data, err := c.call(ctx, "lookup_customer", http.MethodGet, "/api/v2/clientes", q)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusOK {
			return nil, nil
		}
		return nil, err
	}
	if len(env.records) == 0 {
		return nil, nil
	}
	return toCustomer(env.records[0]), nil
}

// ListServices returns the customer's INTERNET services, or every service when none is INTERNET.
func (c *Client) ListServices(ctx context.Context, customerID string) ([]billing.Service, error) {
	path := fmt.Sprintf("/api/v2/clientes/%s/servicos", url.PathEscape(customerID))
	q := url.Values{}
	q.Set("tipoServico", serviceFilter)
	services, err := c.listServices(ctx, path, q)
	if err != nil || len(services) > 0 {
		return services, err
	}
	return c.listServices(ctx, path, nil)
}

func (c *Client) listServices(ctx context.Context, path string, q url.Values) ([]billing.Service, error) {
	data, err := c.call(ctx, "list_services", http.MethodGet, path, q)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	out := make([]billing.Service, 0, len(env.records))
	for _, rec := range env.records {
		out = append(out, toService(rec))
	}
	return out, nil
}

// ListBills returns one page of a service's bills.
func (c *Client) ListBills(ctx context.Context, customerID, serviceID string, page int) (billing.Page, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/api/v2/clientes/%s/servicos/%s/cobrancas", url.PathEscape(customerID), url.PathEscape(serviceID))
	q := url.Values{}
	q.Set("tipoServico", serviceFilter)
	q.Set("pagina", fmt.Sprint(page))
	q.Set("limite", fmt.Sprint(billsPerPage))
	data, err := c.call(ctx, "list_bills", http.MethodGet, path, q)
	if err != nil {
		return billing.Page{}, err
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return billing.Page{}, err
	}
	out := billing.Page{TotalPages: totalPages(env.meta)}
	for _, rec := range env.records {
		out.Records = append(out.Records, toBill(rec))
	}
	return out, nil
}

// ListPaymentMethods returns the PIX/BOLETO methods the backend advertises (possibly none).
func (c *Client) ListPaymentMethods(ctx context.Context, customerID, serviceID, serviceType string) ([]billing.Method, error) {
	if serviceType == "" {
		serviceType = serviceFilter
	}
	path := fmt.Sprintf("/api/v2/clientes/%s/servicos/%s/cobrancas/pagamento/formas", url.PathEscape(customerID), url.PathEscape(serviceID))
	q := url.Values{}
	q.Set("tipoServico", serviceType)
	data, err := c.call(ctx, "list_payment_methods", http.MethodGet, path, q)
	if err != nil {
		return nil, err
	}
	items, err := methodItems(data)
	if err != nil {
		return nil, err
	}
	return detectMethods(items), nil
}

// GeneratePixInstrument asks the backend for a PIX charge for the bill.
func (c *Client) GeneratePixInstrument(ctx context.Context, customerID, serviceID, billID string) (pix.QRCode, error) {
	path := fmt.Sprintf("/api/v2/clientes/%s/servicos/%s/cobrancas/%s/pagamento/qrcode/gerar",
		url.PathEscape(customerID), url.PathEscape(serviceID), url.PathEscape(billID))
	q := url.Values{}
	q.Set("tipo", "PIX")
	data, err := c.call(ctx, "generate_pix", http.MethodPost, path, q)
	if err != nil {
		return pix.QRCode{}, err
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return pix.QRCode{}, err
	}
	inner, _ := env.object["data"].(map[string]any)
	return pix.ParseQRResponse(inner), nil
}

// GenerateBillDocument fetches the boleto PDF as base64 (or a URL, depending on the backend).
func (c *Client) GenerateBillDocument(ctx context.Context, customerID, serviceID, billID string) (billing.Document, error) {
	path := fmt.Sprintf("/api/v2/clientes/%s/servicos/%s/cobrancas/%s/pagamento/pdf",
		url.PathEscape(customerID), url.PathEscape(serviceID), url.PathEscape(billID))
	q := url.Values{}
	q.Set("formato", "base64")
	data, err := c.call(ctx, "generate_document", http.MethodGet, path, q)
	if err != nil {
		return billing.Document{}, err
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return billing.Document{}, err
	}
	return toDocument(env.object["data"]), nil
}

// call performs an authenticated request and records its latency.
func (c *Client) call(ctx context.Context, op, method, path string, q url.Values) ([]byte, error) {
	start := time.Now()
	token, err := c.accessToken(ctx)
	if err == nil {
		var data []byte
		data, err = c.invoke(ctx, method, path, q, nil, "", token)
		if err == nil {
			c.observe(op, "ok", start)
			return data, nil
		}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	c.observe(op, "error", start)
	return nil, err
}

func (c *Client) observe(op, status string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveBackendCall(op, status, time.Since(start).Seconds())
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", scopes)
	data, err := c.invoke(ctx, http.MethodPost, "/api/v2/auth/token/ispbox", nil, []byte(form.Encode()), "application/x-www-form-urlencoded", "")
	if err != nil {
		return "", fmt.Errorf("ispbox: authenticate: %w", err)
	}
	var tok tokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("ispbox: decode token: %w", err)
	}
	if tok.Status == "error" || tok.AccessToken == "" {
		return "", &APIError{StatusCode: http.StatusOK, Status: tok.Status, Message: "authentication failed: " + tok.Message}
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(tokenLifetime)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, contentType, token string) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("ispbox: build request: %w", err)
		}
		req.Header.Set("X-Request-ID", defaultRequestID)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("ispbox: http error: %w: %w", billing.ErrDownstreamUnavailable, err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("ispbox: read response: %w: %w", billing.ErrDownstreamUnavailable, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("ispbox: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("ispbox retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}
