package uazapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const defaultPixName = "Pix"

// Config controls how the Uazapi client behaves.
type Config struct {
	Server string
	// Token is the instance token. It is always sent in the body.
	Token string
	// AdminToken is tried first in the auth headers. Defaults to Token.
	AdminToken string
	Instance   string
	PixName    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client talks to a Uazapi WhatsApp instance.
type Client struct {
	server     string
	token      string
	adminToken string
	instance   string
	pixName    string
	httpClient *http.Client
	logger     *logging.Logger
	variants   []authVariant
}

// authVariant is one way of authenticating a request. The gateway versions in the wild
// disagree, so variants are tried in order until one succeeds.
type authVariant struct {
	name  string
	apply func(req *http.Request)
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	server := strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if server == "" {
		return nil, errors.New("uazapi: server is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("uazapi: instance token is required")
	}
	adminToken := strings.TrimSpace(cfg.AdminToken)
	if adminToken == "" {
		adminToken = cfg.Token
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	pixName := strings.TrimSpace(cfg.PixName)
	if pixName == "" {
		pixName = defaultPixName
	}
	c := &Client{
		server:     server,
		token:      cfg.Token,
		adminToken: adminToken,
		instance:   strings.TrimSpace(cfg.Instance),
		pixName:    pixName,
		httpClient: httpClient,
		logger:     logger,
	}
	c.variants = []authVariant{
		{name: "admin_header", apply: func(req *http.Request) { setAuth(req, c.adminToken) }},
		{name: "admin_header_query", apply: func(req *http.Request) {
			setAuth(req, c.adminToken)
			q := req.URL.Query()
			q.Set("token", c.token)
			req.URL.RawQuery = q.Encode()
		}},
		{name: "instance_header", apply: func(req *http.Request) { setAuth(req, c.token) }},
	}
	return c, nil
}

func setAuth(req *http.Request, token string) {
	req.Header.Set("apikey", token)
	req.Header.Set("Authorization", "Bearer "+token)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, number, text string) error {
	_, err := c.post(ctx, "/send/text", map[string]any{
		"number": number,
		"text":   text,
	})
	return err
}

// SendMenu sends an interactive menu. An empty type defaults to a list.
func (c *Client) SendMenu(ctx context.Context, number string, menu Menu) error {
	if menu.Type == "" {
		menu.Type = MenuList
	}
	body := map[string]any{
		"number":       number,
		"type":         menu.Type,
		"text":         menu.Text,
		"choices":      menu.Choices,
		"readchat":     menu.ReadChat,
		"readmessages": menu.ReadMessages,
	}
	if menu.FooterText != "" {
		body["footerText"] = menu.FooterText
	}
	if menu.ListButton != "" {
		body["listButton"] = menu.ListButton
	}
	_, err := c.post(ctx, "/send/menu", body)
	return err
}

// SendMedia sends an image or document, then leaves the chat marked unread.
func (c *Client) SendMedia(ctx context.Context, number string, media Media) error {
	body := map[string]any{
		"number":       number,
		"type":         media.Type,
		"file":         media.File,
		"text":         media.Text,
		"readchat":     false,
		"readmessages": false,
	}
	if media.DocName != "" {
		body["docName"] = media.DocName
	}
	if _, err := c.post(ctx, "/send/media", body); err != nil {
		return err
	}
	c.SetChatRead(ctx, number, false)
	return nil
}

// SendPixButton sends WhatsApp's native PIX button for a key of the given type.
func (c *Client) SendPixButton(ctx context.Context, number, pixType, pixKey string) error {
	_, err := c.post(ctx, "/send/pix-button", map[string]any{
		"number":       number,
		"pixType":      pixType,
		"pixKey":       pixKey,
		"pixName":      c.pixName,
		"readchat":     false,
		"readmessages": false,
	})
	if err != nil {
		return err
	}
	c.SetChatRead(ctx, number, false)
	return nil
}

// SetChatRead toggles the read marker of a chat. Failures are logged and otherwise ignored.
func (c *Client) SetChatRead(ctx context.Context, number string, read bool) {
	_, err := c.post(ctx, "/chat/read", map[string]any{
		"number": chatJID(number),
		"read":   read,
	})
	if err != nil {
		c.logger.Debug("uazapi: chat read marker failed", "number", number, "error", err)
	}
}

// Status returns the raw instance status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	data, err := c.do(ctx, http.MethodGet, "/instance/status", nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// SetWebhook points the instance webhook at url. The instance-scoped endpoint is tried
// first, then the global one with the token in the body.
func (c *Client) SetWebhook(ctx context.Context, webhookURL string) (map[string]any, error) {
	webhookURL = WebhookEndpoint(webhookURL)
	if webhookURL == "" {
		return nil, errors.New("uazapi: webhook url is required")
	}
	var result *multierror.Error
	if c.instance != "" {
		data, err := c.send(ctx, http.MethodPost, "/webhook/set/"+url.PathEscape(c.instance),
			map[string]any{"url": webhookURL}, c.variants[2])
		if err == nil {
			return decodeObject(data)
		}
		result = multierror.Append(result, err)
	}
	data, err := c.send(ctx, http.MethodPost, "/webhook/set",
		map[string]any{"url": webhookURL, "token": c.token}, c.variants[2])
	if err == nil {
		return decodeObject(data)
	}
	result = multierror.Append(result, err)
	return nil, fmt.Errorf("uazapi: set webhook: %w", result.ErrorOrNil())
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	if _, ok := body["token"]; !ok {
		body["token"] = c.token
	}
	return c.do(ctx, http.MethodPost, path, body)
}

// do tries every auth variant in order and returns the first success.
func (c *Client) do(ctx context.Context, method, path string, body map[string]any) ([]byte, error) {
	var result *multierror.Error
	for _, variant := range c.variants {
		data, err := c.send(ctx, method, path, body, variant)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", variant.name, err))
		c.logger.Debug("uazapi auth variant failed", "path", path, "variant", variant.name, "error", err)
	}
	return nil, fmt.Errorf("uazapi: %s %s: %w", method, path, result.ErrorOrNil())
}

func (c *Client) send(ctx context.Context, method, path string, body map[string]any, variant authVariant) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("uazapi: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return nil, fmt.Errorf("uazapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	variant.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("uazapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("uazapi: decode response: %w", err)
	}
	return out, nil
}
