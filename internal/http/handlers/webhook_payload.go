package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/isp-support-bot/internal/messaging"
)

// payloadVariant names the webhook shapes the gateway is known to send.
type payloadVariant string

const (
	variantUazapiMessages payloadVariant = "uazapi_messages"
	variantKeyedMessage   payloadVariant = "keyed_message"
	variantMessageArray   payloadVariant = "message_array"
	variantUpsertEvent    payloadVariant = "upsert_event"
)

// inboundMessage is one customer message extracted from a webhook, before deduplication.
type inboundMessage struct {
	variant    payloadVariant
	chatID     string
	body       string
	buttonID   string
	messageID  string
	timestamp  string
	senderName string
}

func (m inboundMessage) identity() string {
	return messaging.NormalizeIdentity(m.chatID)
}

// dedupKey is the gateway message id, or identity and timestamp when the id is missing.
// An empty result means the message cannot be deduplicated.
func (m inboundMessage) dedupKey() string {
	if id := strings.TrimSpace(m.messageID); id != "" {
		return id
	}
	if m.timestamp != "" {
		return m.identity() + "_" + m.timestamp
	}
	return ""
}

type webhookPayload struct {
	EventType string          `json:"EventType"`
	Event     string          `json:"event"`
	Message   json.RawMessage `json:"message"`
	Key       *messageKey     `json:"key"`
	Messages  []keyedEnvelope `json:"messages"`
	Data      json.RawMessage `json:"data"`
	Chat      *struct {
		Name string `json:"name"`
	} `json:"chat"`
}

// uazapiMessage is the gateway's native message object.
type uazapiMessage struct {
	ID             string          `json:"id"`
	MessageID      string          `json:"messageid"`
	Sender         string          `json:"sender"`
	ChatID         string          `json:"chatid"`
	SenderPN       string          `json:"sender_pn"`
	FromMe         *bool           `json:"fromMe"`
	WasSentByAPI   bool            `json:"wasSentByApi"`
	ButtonOrListID string          `json:"buttonOrListid"`
	Text           string          `json:"text"`
	Content        json.RawMessage `json:"content"`
	Vote           string          `json:"vote"`
	Body           string          `json:"body"`
	SenderName     string          `json:"senderName"`
	Timestamp      json.RawMessage `json:"messageTimestamp"`
}

type messageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type keyedContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
}

func (c *keyedContent) text() string {
	if c == nil {
		return ""
	}
	if c.Conversation != "" {
		return c.Conversation
	}
	if c.ExtendedTextMessage != nil {
		return c.ExtendedTextMessage.Text
	}
	return ""
}

type keyedEnvelope struct {
	Key       *messageKey     `json:"key"`
	Message   *keyedContent   `json:"message"`
	FromMe    bool            `json:"fromMe"`
	PushName  string          `json:"pushName"`
	Timestamp json.RawMessage `json:"messageTimestamp"`
}

func (e keyedEnvelope) fromMe() bool {
	return e.FromMe || (e.Key != nil && e.Key.FromMe)
}

func (e keyedEnvelope) toInbound(variant payloadVariant) inboundMessage {
	return inboundMessage{
		variant:    variant,
		chatID:     e.Key.RemoteJID,
		body:       strings.TrimSpace(e.Message.text()),
		messageID:  e.Key.ID,
		timestamp:  scalarString(e.Timestamp),
		senderName: e.PushName,
	}
}

// parseWebhook extracts the candidate customer messages of a webhook in processing order.
// Messages sent by the bot itself, by the API and from group chats are dropped here.
func parseWebhook(raw []byte) (payloadVariant, []inboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", nil, fmt.Errorf("handlers: decode webhook: %w", err)
	}

	var (
		variant payloadVariant
		out     []inboundMessage
	)
	switch {
	case payload.EventType == "messages" && hasObject(payload.Message):
		variant = variantUazapiMessages
		var msg uazapiMessage
		if err := json.Unmarshal(payload.Message, &msg); err != nil {
			return variant, nil, fmt.Errorf("handlers: decode message: %w", err)
		}
		chatName := ""
		if payload.Chat != nil {
			chatName = payload.Chat.Name
		}
		if m, ok := fromUazapiMessage(msg, chatName); ok {
			out = append(out, m)
		}
	case payload.Key != nil && hasObject(payload.Message):
		variant = variantKeyedMessage
		var content keyedContent
		if err := json.Unmarshal(payload.Message, &content); err != nil {
			return variant, nil, fmt.Errorf("handlers: decode keyed message: %w", err)
		}
		env := keyedEnvelope{Key: payload.Key, Message: &content}
		if !env.fromMe() {
			out = append(out, env.toInbound(variant))
		}
	case len(payload.Messages) > 0:
		variant = variantMessageArray
		out = keyedMessages(variant, payload.Messages)
	case isUpsert(payload) && len(payload.Data) > 0:
		variant = variantUpsertEvent
		envelopes, err := decodeOneOrMany(payload.Data)
		if err != nil {
			return variant, nil, err
		}
		out = keyedMessages(variant, envelopes)
	default:
		return "", nil, nil
	}

	kept := out[:0]
	for _, m := range out {
		if messaging.IsGroupChat(m.chatID) || m.identity() == "" {
			continue
		}
		if m.body == "" && m.buttonID == "" {
			continue
		}
		kept = append(kept, m)
	}
	return variant, kept, nil
}

func fromUazapiMessage(msg uazapiMessage, chatName string) (inboundMessage, bool) {
	// Only messages explicitly marked as not ours are customer input.
	if msg.FromMe == nil || *msg.FromMe || msg.WasSentByAPI {
		return inboundMessage{}, false
	}
	chatID := firstNonEmpty(msg.Sender, msg.ChatID, msg.SenderPN)
	if chatID == "" {
		return inboundMessage{}, false
	}
	button := strings.TrimSpace(msg.ButtonOrListID)
	body := button
	if body == "" {
		body = firstNonEmpty(msg.Text, contentText(msg.Content), msg.Vote, msg.Body)
	}
	return inboundMessage{
		variant:    variantUazapiMessages,
		chatID:     chatID,
		body:       strings.TrimSpace(body),
		buttonID:   button,
		messageID:  firstNonEmpty(msg.ID, msg.MessageID),
		timestamp:  scalarString(msg.Timestamp),
		senderName: firstNonEmpty(msg.SenderName, chatName),
	}, true
}

// contentText reads "content" as either a string or an object carrying the text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text         string `json:"text"`
		Conversation string `json:"conversation"`
		Body         string `json:"body"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return firstNonEmpty(obj.Text, obj.Conversation, obj.Body)
}

func keyedMessages(variant payloadVariant, envelopes []keyedEnvelope) []inboundMessage {
	out := make([]inboundMessage, 0, len(envelopes))
	for _, env := range envelopes {
		if env.Key == nil || env.fromMe() {
			continue
		}
		out = append(out, env.toInbound(variant))
	}
	return out
}

func decodeOneOrMany(raw json.RawMessage) ([]keyedEnvelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []keyedEnvelope
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, fmt.Errorf("handlers: decode upsert data: %w", err)
		}
		return many, nil
	}
	var one keyedEnvelope
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("handlers: decode upsert data: %w", err)
	}
	return []keyedEnvelope{one}, nil
}

func isUpsert(p webhookPayload) bool {
	event := firstNonEmpty(p.Event, p.EventType)
	return event == "messages.upsert" || event == "messages"
}

func hasObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// scalarString renders a JSON number or string without quotes.
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
