package ispbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/isp-support-bot/internal/billing"
)

// APIError is a non-2xx response, or a 2xx body carrying status "error".
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ispbox: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ispbox: status %d", e.StatusCode)
}

// Is lets callers classify every backend failure as billing.ErrDownstreamUnavailable.
func (e *APIError) Is(target error) bool {
	return target == billing.ErrDownstreamUnavailable
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
	}
	return apiErr
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// envelope is the loosely shaped body ISPBOX returns: {data: [...]}, {data: {...}}, or a bare array.
type envelope struct {
	records []map[string]any
	object  map[string]any
	meta    map[string]any
}

func decodeEnvelope(data []byte) (envelope, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return envelope{}, fmt.Errorf("ispbox: decode response: %w", err)
	}
	var env envelope
	switch v := raw.(type) {
	case []any:
		env.records = objects(v)
	case map[string]any:
		if status, _ := v["status"].(string); status == "error" {
			msg, _ := v["message"].(string)
			return envelope{}, &APIError{StatusCode: 200, Status: status, Message: msg}
		}
		env.object = v
		env.meta, _ = v["meta"].(map[string]any)
		switch inner := v["data"].(type) {
		case []any:
			env.records = objects(inner)
		case map[string]any:
			env.records = []map[string]any{inner}
		}
	}
	return env, nil
}

func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// str returns the first non-empty field among keys rendered as a string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// cents parses amounts such as 69.99, "69.99", "69,99" or "1.234,56".
func cents(v any) int64 {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(x), "R$"))
	case float64:
		return int64(math.Round(x * 100))
	default:
		return 0
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func toCustomer(m map[string]any) *billing.Customer {
	return &billing.Customer{
		ID:   str(m, "id"),
		Name: str(m, "nome", "razaoSocial"),
		Raw:  m,
	}
}

func toService(m map[string]any) billing.Service {
	return billing.Service{
		ID:   str(m, "id"),
		Type: str(m, "tipoServico", "tipo"),
		Raw:  m,
	}
}

func toBill(m map[string]any) billing.Bill {
	desc := str(m, "descricao", "descricaoServico")
	if desc == "N/A" {
		desc = ""
	}
	return billing.Bill{
		ID:          str(m, "id"),
		Amount:      cents(m["valor"]),
		DueDate:     parseDate(str(m, "dataVencimento", "data_vencimento", "vencimento")),
		Description: desc,
		Kind:        str(m, "tipo"),
		Reference:   parseDate(str(m, "referenciaMensalidade")),
		PaidAt:      str(m, "dataPagamento", "data_pagamento"),
	}
}

func totalPages(meta map[string]any) int {
	if meta == nil {
		return 0
	}
	n, err := strconv.Atoi(str(meta, "totalPaginas"))
	if err != nil {
		return 0
	}
	return n
}

// detectMethods reads payment methods given as strings or objects with tipo/nome/forma.
func detectMethods(items []any) []billing.Method {
	var hasPix, hasBoleto bool
	for _, item := range items {
		var label string
		switch v := item.(type) {
		case string:
			label = v
		case map[string]any:
			label = str(v, "tipo", "nome", "forma")
		}
		label = strings.ToUpper(label)
		if strings.Contains(label, "PIX") {
			hasPix = true
		}
		if strings.Contains(label, "BOLETO") {
			hasBoleto = true
		}
	}
	var out []billing.Method
	if hasPix {
		out = append(out, billing.MethodPix)
	}
	if hasBoleto {
		out = append(out, billing.MethodBoleto)
	}
	return out
}

// methodItems finds the method list in {data: [...]}, a bare array, or an object keyed formas/tipos.
func methodItems(data []byte) ([]any, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ispbox: decode payment methods: %w", err)
	}
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if status, _ := v["status"].(string); status == "error" {
			msg, _ := v["message"].(string)
			return nil, &APIError{StatusCode: 200, Status: status, Message: msg}
		}
		if arr, ok := v["data"].([]any); ok {
			return arr, nil
		}
		for _, key := range []string{"formas", "tipos"} {
			if arr, ok := v[key].([]any); ok {
				return arr, nil
			}
		}
		for _, key := range slices.Sorted(maps.Keys(v)) {
			if arr, ok := v[key].([]any); ok {
				return arr, nil
			}
		}
	}
	return nil, nil
}

func toDocument(v any) billing.Document {
	switch d := v.(type) {
	case string:
		return billing.Document{Base64: d}
	case map[string]any:
		if b := str(d, "base64", "pdf", "data"); b != "" {
			return billing.Document{Base64: b}
		}
		return billing.Document{URL: str(d, "url")}
	}
	return billing.Document{}
}
