package uazapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Menu is an interactive message: reply buttons, a list, or a poll.
// Each choice is "label|id"; a bare label doubles as its own id.
type Menu struct {
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	FooterText   string   `json:"footerText,omitempty"`
	ListButton   string   `json:"listButton,omitempty"`
	Choices      []string `json:"choices"`
	ReadChat     bool     `json:"readchat"`
	ReadMessages bool     `json:"readmessages"`
}

// Menu types accepted by /send/menu.
const (
	MenuButton = "button"
	MenuList   = "list"
)

// Media is an image or document delivered through /send/media. File is a URL or a data URI.
type Media struct {
	Type    string `json:"type"`
	File    string `json:"file"`
	Text    string `json:"text"`
	DocName string `json:"docName,omitempty"`
}

const (
	MediaImage    = "image"
	MediaDocument = "document"
)

// Choice builds a "label|id" menu entry.
func Choice(label, id string) string {
	if id == "" {
		return label
	}
	return label + "|" + id
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.ErrorText
	}
	if msg == "" {
		return fmt.Sprintf("uazapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("uazapi: status %d: %s", e.StatusCode, msg)
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" && apiErr.ErrorText == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
	}
	return apiErr
}

// chatJID returns the WhatsApp JID for a bare number.
func chatJID(number string) string {
	if strings.Contains(number, "@") {
		return number
	}
	return number + "@s.whatsapp.net"
}

// WebhookEndpoint makes sure a public base URL points at the /webhook route.
func WebhookEndpoint(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" || strings.HasSuffix(raw, "/webhook") {
		return raw
	}
	return raw + "/webhook"
}
