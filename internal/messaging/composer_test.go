package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

type stubComposer struct {
	calls []string
	err   error
}

func (s *stubComposer) SendText(_ context.Context, _ string, text string) error {
	s.calls = append(s.calls, "text:"+text)
	return s.err
}

func (s *stubComposer) SendMenu(_ context.Context, _ string, menu uazapi.Menu) error {
	s.calls = append(s.calls, "menu:"+menu.Text)
	return s.err
}

func (s *stubComposer) SendMedia(_ context.Context, _ string, media uazapi.Media) error {
	s.calls = append(s.calls, "media:"+media.Type)
	return s.err
}

func (s *stubComposer) SendPixButton(_ context.Context, _ string, pixType, _ string) error {
	s.calls = append(s.calls, "pix:"+pixType)
	return s.err
}

type stubMarker struct {
	marks []string
}

func (s *stubMarker) SetChatRead(_ context.Context, number string, read bool) {
	if read {
		s.marks = append(s.marks, number+":read")
		return
	}
	s.marks = append(s.marks, number+":unread")
}

type stubOutbound struct {
	seen map[string]int
}

func (s *stubOutbound) ObserveOutbound(kind, status string) {
	if s.seen == nil {
		s.seen = map[string]int{}
	}
	s.seen[kind+"/"+status]++
}

func TestWrapWithUnreadDisabledReturnsInner(t *testing.T) {
	inner := &stubComposer{}
	if got := WrapWithUnread(inner, UnreadConfig{Enabled: false, Marker: &stubMarker{}}); got != inner {
		t.Fatalf("expected inner composer when disabled")
	}
	if got := WrapWithUnread(inner, UnreadConfig{Enabled: true}); got != inner {
		t.Fatalf("expected inner composer without a marker")
	}
}

func TestUnreadComposerMarksTextAndMenus(t *testing.T) {
	inner := &stubComposer{}
	marker := &stubMarker{}
	wrapped := WrapWithUnread(inner, UnreadConfig{Enabled: true, Marker: marker, Logger: logging.Discard()})
	ctx := context.Background()

	_ = wrapped.SendText(ctx, "5511999990000", "oi")
	_ = wrapped.SendMenu(ctx, "5511999990000", uazapi.Menu{Text: "menu"})
	_ = wrapped.SendMedia(ctx, "5511999990000", uazapi.Media{Type: uazapi.MediaImage})
	_ = wrapped.SendPixButton(ctx, "5511999990000", "EVP", "key")

	if len(inner.calls) != 4 {
		t.Fatalf("expected 4 inner calls, got %v", inner.calls)
	}
	if len(marker.marks) != 2 || marker.marks[0] != "5511999990000:unread" {
		t.Fatalf("expected two unread marks, got %v", marker.marks)
	}
}

func TestUnreadComposerSkipsMarkOnFailure(t *testing.T) {
	inner := &stubComposer{err: errors.New("gateway down")}
	marker := &stubMarker{}
	wrapped := WrapWithUnread(inner, UnreadConfig{Enabled: true, Marker: marker, Logger: logging.Discard()})

	if err := wrapped.SendText(context.Background(), "5511999990000", "oi"); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if len(marker.marks) != 0 {
		t.Fatalf("expected no mark after failed send, got %v", marker.marks)
	}
}

func TestMeteredComposerCountsByKind(t *testing.T) {
	inner := &stubComposer{}
	observer := &stubOutbound{}
	metered := NewMeteredComposer(inner, observer, logging.Discard())
	ctx := context.Background()

	_ = metered.SendText(ctx, "1", "a")
	_ = metered.SendText(ctx, "1", "b")
	_ = metered.SendMedia(ctx, "1", uazapi.Media{Type: uazapi.MediaDocument})
	inner.err = errors.New("boom")
	if err := metered.SendMenu(ctx, "1", uazapi.Menu{}); err == nil {
		t.Fatalf("expected menu error")
	}
	_ = metered.SendPixButton(ctx, "1", "CPF", "x")

	want := map[string]int{"text/ok": 2, "document/ok": 1, "menu/error": 1, "pix_button/error": 1}
	for key, n := range want {
		if observer.seen[key] != n {
			t.Fatalf("%s = %d, want %d (all: %v)", key, observer.seen[key], n, observer.seen)
		}
	}
}

func TestMeteredComposerNilObserver(t *testing.T) {
	metered := NewMeteredComposer(&stubComposer{}, nil, nil)
	if err := metered.SendText(context.Background(), "1", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
