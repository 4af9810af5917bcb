package pix

import (
	"regexp"
	"strings"
)

// Kind is the type of a PIX key as accepted by the gateway's native PIX button.
type Kind string

const (
	KindEVP   Kind = "EVP"
	KindCPF   Kind = "CPF"
	KindCNPJ  Kind = "CNPJ"
	KindEmail Kind = "EMAIL"
	KindPhone Kind = "PHONE"
)

// Instrument is a PIX key decoded from a copy-and-paste payload.
type Instrument struct {
	Key  string `json:"key"`
	Kind Kind   `json:"kind"`
}

var (
	v2HexPattern   = regexp.MustCompile(`(?i)/v2/([a-f0-9]{32,})`)
	v2TokenPattern = regexp.MustCompile(`(?i)/v2/([a-z0-9-]+)`)
	emvPreamble    = regexp.MustCompile(`^00\d{20,}`)
	elevenDigits   = regexp.MustCompile(`\d{11}`)
	fourteenDigits = regexp.MustCompile(`\d{14}`)
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+`)
	phonePattern   = regexp.MustCompile(`\+?55(\d{10,11})`)
	longHexPattern = regexp.MustCompile(`(?i)[a-f0-9]{32,}`)
	uuidPattern    = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

const minV2TokenLength = 10

type rule struct {
	name  string
	match func(payload string) (Instrument, bool)
}

// Rules run in order and the first match wins.
var rules = []rule{
	{name: "v2_hex", match: func(p string) (Instrument, bool) {
		if m := v2HexPattern.FindStringSubmatch(p); m != nil {
			return Instrument{Key: m[1], Kind: KindEVP}, true
		}
		return Instrument{}, false
	}},
	{name: "v2_token", match: func(p string) (Instrument, bool) {
		if m := v2TokenPattern.FindStringSubmatch(p); m != nil && len(m[1]) >= minV2TokenLength {
			return Instrument{Key: m[1], Kind: KindEVP}, true
		}
		return Instrument{}, false
	}},
	{name: "cpf", match: func(p string) (Instrument, bool) {
		run := elevenDigits.FindString(stripPreamble(p))
		if plausibleTaxID(run, 11) {
			return Instrument{Key: run, Kind: KindCPF}, true
		}
		return Instrument{}, false
	}},
	{name: "cnpj", match: func(p string) (Instrument, bool) {
		run := fourteenDigits.FindString(stripPreamble(p))
		if plausibleTaxID(run, 14) {
			return Instrument{Key: run, Kind: KindCNPJ}, true
		}
		return Instrument{}, false
	}},
	{name: "email", match: func(p string) (Instrument, bool) {
		if m := emailPattern.FindString(p); m != "" {
			return Instrument{Key: m, Kind: KindEmail}, true
		}
		return Instrument{}, false
	}},
	{name: "phone", match: func(p string) (Instrument, bool) {
		if m := phonePattern.FindStringSubmatch(p); m != nil {
			return Instrument{Key: "+55" + m[1], Kind: KindPhone}, true
		}
		return Instrument{}, false
	}},
	{name: "hex", match: func(p string) (Instrument, bool) {
		if m := longHexPattern.FindString(p); m != "" {
			return Instrument{Key: m, Kind: KindEVP}, true
		}
		return Instrument{}, false
	}},
	{name: "uuid", match: func(p string) (Instrument, bool) {
		if m := uuidPattern.FindString(p); m != "" {
			return Instrument{Key: m, Kind: KindEVP}, true
		}
		return Instrument{}, false
	}},
}

// Decode extracts the PIX key embedded in a copy-and-paste payload.
// An unrecognized payload yields false; the payload itself is never used as a key.
func Decode(payload string) (Instrument, bool) {
	inst, _, ok := DecodeWithRule(payload)
	return inst, ok
}

// DecodeWithRule is Decode that also reports which rule matched.
func DecodeWithRule(payload string) (Instrument, string, bool) {
	if strings.TrimSpace(payload) == "" {
		return Instrument{}, "", false
	}
	for _, r := range rules {
		if inst, ok := r.match(payload); ok {
			return inst, r.name, true
		}
	}
	return Instrument{}, "", false
}

func stripPreamble(payload string) string {
	return emvPreamble.ReplaceAllString(payload, "")
}

// plausibleTaxID rejects runs that start with 00 or repeat a single digit.
func plausibleTaxID(run string, size int) bool {
	if len(run) != size || strings.HasPrefix(run, "00") {
		return false
	}
	return strings.Count(run, run[:1]) != size
}
