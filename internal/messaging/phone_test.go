package messaging

import "testing"

func TestNormalizeIdentity(t *testing.T) {
	tests := map[string]string{
		"5511999990000@s.whatsapp.net":    "5511999990000",
		"5511999990000:12@s.whatsapp.net": "5511999990000",
		"11999990000":                     "5511999990000",
		"(11) 99999-0000":                 "5511999990000",
		"+55 11 99999-0000":               "5511999990000",
		"55999990000":                     "5555999990000",
		"":                                "",
		"@s.whatsapp.net":                 "",
	}
	for raw, want := range tests {
		if got := NormalizeIdentity(raw); got != want {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestIsGroupChat(t *testing.T) {
	if !IsGroupChat("120363025246125888@g.us") {
		t.Fatalf("expected group chat")
	}
	if IsGroupChat("5511999990000@s.whatsapp.net") {
		t.Fatalf("expected direct chat")
	}
}
