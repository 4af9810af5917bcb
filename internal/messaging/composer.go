package messaging

import (
	"context"

	"github.com/wolfman30/isp-support-bot/internal/conversation"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// ReadMarker toggles the read state of a chat. *uazapi.Client satisfies it.
type ReadMarker interface {
	SetChatRead(ctx context.Context, number string, read bool)
}

// OutboundObserver counts outbound sends. The metrics package satisfies it.
type OutboundObserver interface {
	ObserveOutbound(kind, status string)
}

// UnreadConfig configures the unread-marker wrapper.
type UnreadConfig struct {
	Enabled bool
	Marker  ReadMarker
	Logger  *logging.Logger
}

// WrapWithUnread optionally wraps a composer so chats stay unread after bot text and menus.
// If not enabled, returns the original composer unchanged.
func WrapWithUnread(inner conversation.Composer, cfg UnreadConfig) conversation.Composer {
	if !cfg.Enabled || inner == nil || cfg.Marker == nil {
		return inner
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger.Info("unread marker enabled for outbound messages")
	return &UnreadComposer{inner: inner, marker: cfg.Marker}
}

// UnreadComposer marks the chat unread after each text or menu. Media and PIX buttons are
// already sent unread by the gateway client.
type UnreadComposer struct {
	inner  conversation.Composer
	marker ReadMarker
}

var _ conversation.Composer = (*UnreadComposer)(nil)

func (u *UnreadComposer) SendText(ctx context.Context, identity, text string) error {
	if err := u.inner.SendText(ctx, identity, text); err != nil {
		return err
	}
	u.marker.SetChatRead(ctx, identity, false)
	return nil
}

func (u *UnreadComposer) SendMenu(ctx context.Context, identity string, menu uazapi.Menu) error {
	if err := u.inner.SendMenu(ctx, identity, menu); err != nil {
		return err
	}
	u.marker.SetChatRead(ctx, identity, false)
	return nil
}

func (u *UnreadComposer) SendMedia(ctx context.Context, identity string, media uazapi.Media) error {
	return u.inner.SendMedia(ctx, identity, media)
}

func (u *UnreadComposer) SendPixButton(ctx context.Context, identity, pixType, pixKey string) error {
	return u.inner.SendPixButton(ctx, identity, pixType, pixKey)
}

// MeteredComposer counts every outbound send by kind and outcome.
type MeteredComposer struct {
	inner    conversation.Composer
	observer OutboundObserver
	logger   *logging.Logger
}

// NewMeteredComposer wraps inner. A nil observer disables counting.
func NewMeteredComposer(inner conversation.Composer, observer OutboundObserver, logger *logging.Logger) *MeteredComposer {
	if inner == nil {
		panic("messaging: composer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MeteredComposer{inner: inner, observer: observer, logger: logger}
}

var _ conversation.Composer = (*MeteredComposer)(nil)

func (m *MeteredComposer) SendText(ctx context.Context, identity, text string) error {
	return m.observe("text", identity, m.inner.SendText(ctx, identity, text))
}

func (m *MeteredComposer) SendMenu(ctx context.Context, identity string, menu uazapi.Menu) error {
	return m.observe("menu", identity, m.inner.SendMenu(ctx, identity, menu))
}

func (m *MeteredComposer) SendMedia(ctx context.Context, identity string, media uazapi.Media) error {
	return m.observe(media.Type, identity, m.inner.SendMedia(ctx, identity, media))
}

func (m *MeteredComposer) SendPixButton(ctx context.Context, identity, pixType, pixKey string) error {
	return m.observe("pix_button", identity, m.inner.SendPixButton(ctx, identity, pixType, pixKey))
}

func (m *MeteredComposer) observe(kind, identity string, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
		m.logger.Warn("outbound send failed", "kind", kind, "to", identity, "error", err)
	}
	if m.observer != nil {
		m.observer.ObserveOutbound(kind, status)
	}
	return err
}
