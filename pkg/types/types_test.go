package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc234", "ABC234"},
		{"  xyz789 ", "XYZ789"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"ABC234", true},
		{"ZZZZZZ", true},
		{"ABC23", false},
		{"ABC2345", false},
		{"ABCO23", false}, // O is excluded
		{"ABC123", false}, // 1 is excluded
		{"abc234", false}, // must be normalized first
	}
	for _, tt := range tests {
		if got := IsValidCode(tt.code); got != tt.valid {
			t.Errorf("IsValidCode(%q) = %v, want %v", tt.code, got, tt.valid)
		}
	}
}

func TestCodeAlphabet_NoAmbiguousCharacters(t *testing.T) {
	for _, r := range "01OIL" {
		if strings.ContainsRune(CodeAlphabet, r) {
			t.Errorf("alphabet contains ambiguous character %q", r)
		}
	}
	if len(CodeAlphabet) != 32 {
		t.Errorf("expected 32 characters, got %d", len(CodeAlphabet))
	}
}

func TestCredentials_ValidateRequiresSynthesisKey(t *testing.T) {
	if err := (Credentials{}).Validate(); !errors.Is(err, ErrMissingSynthesisKey) {
		t.Errorf("expected ErrMissingSynthesisKey, got %v", err)
	}
	if err := (Credentials{SynthesisKey: "   "}).Validate(); !errors.Is(err, ErrUnprocessable) {
		t.Errorf("blank key should be unprocessable, got %v", err)
	}
	if err := (Credentials{SynthesisKey: "K1"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentials_WithDefaults(t *testing.T) {
	c := Credentials{SynthesisKey: "K1"}.WithDefaults()
	if c.AIProvider != DefaultAIProvider || c.VoiceID != DefaultVoiceID || c.STTProvider != DefaultSTTProvider {
		t.Errorf("defaults not applied: %+v", c)
	}

	c = Credentials{SynthesisKey: "K1", VoiceID: "V1", STTProvider: "scribe"}.WithDefaults()
	if c.VoiceID != "V1" || c.STTProvider != "scribe" {
		t.Errorf("explicit values overwritten: %+v", c)
	}
}

func TestCredentials_NeverMarshalKeys(t *testing.T) {
	c := Credentials{SynthesisKey: "secret-synth", AIKey: "secret-ai", VoiceID: "V1"}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("credentials leaked into JSON: %s", data)
	}

	public, _ := json.Marshal(c.Public())
	if strings.Contains(string(public), "secret") {
		t.Errorf("public settings leaked keys: %s", public)
	}
	if !c.Public().HasSynthesis || !c.Public().HasAI {
		t.Error("presence flags should be set")
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		err      error
		category error
	}{
		{ErrSessionNotFound, ErrNotFound},
		{ErrNotOwner, ErrUnauthorized},
		{ErrInvalidPIN, ErrUnauthorized},
		{ErrMissingAIKey, ErrUnprocessable},
		{ErrInvalidLevel, ErrUnprocessable},
		{ErrUpstreamTimeout, ErrUpstream},
		{ErrSimplifyDisabled, ErrForbidden},
		{ErrTranslationResolved, ErrUnprocessable},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.category) {
			t.Errorf("%v should wrap %v", tt.err, tt.category)
		}
	}
}

func TestLevels(t *testing.T) {
	for _, level := range []string{"original", "A1", "A2", "B1"} {
		if !IsValidReadingLevel(level) {
			t.Errorf("%s should be a valid reading level", level)
		}
	}
	if IsValidReadingLevel("C2") {
		t.Error("C2 should be rejected")
	}
	if IsValidSimplifyLevel("original") {
		t.Error("original is not a simplification target")
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName("tr"); got != "Türkisch" {
		t.Errorf("LanguageName(tr) = %q", got)
	}
	if got := LanguageName("xx"); got != "xx" {
		t.Errorf("unknown code should fall back to itself, got %q", got)
	}
}

func TestValidateSettings(t *testing.T) {
	got, err := ValidateSettings(nil)
	if err != nil || string(got) != "{}" {
		t.Errorf("empty settings should become {}, got %s, %v", got, err)
	}
	if _, err := ValidateSettings(json.RawMessage(`[1,2]`)); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("array settings should be rejected, got %v", err)
	}
	got, err = ValidateSettings(json.RawMessage(`{"font_size": 18}`))
	if err != nil || string(got) != `{"font_size": 18}` {
		t.Errorf("object should pass through unchanged, got %s, %v", got, err)
	}
}

func TestValidateTasks(t *testing.T) {
	raw, n, err := ValidateTasks(json.RawMessage(`[{"q":"a"},{"q":"b"}]`))
	if err != nil || n != 2 || len(raw) == 0 {
		t.Errorf("expected 2 tasks, got %d, %v", n, err)
	}
	if _, _, err := ValidateTasks(json.RawMessage(`{"q":"a"}`)); !errors.Is(err, ErrInvalidTasks) {
		t.Errorf("object tasks should be rejected, got %v", err)
	}
	raw, n, err = ValidateTasks(nil)
	if err != nil || n != 0 || string(raw) != "[]" {
		t.Errorf("empty tasks should become [], got %s", raw)
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("Hallo Welt"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateText(strings.Repeat("a", MaxTextBytes+1)); !errors.Is(err, ErrTextTooLarge) {
		t.Errorf("expected ErrTextTooLarge, got %v", err)
	}
}

func TestIdentity_AnonymousID(t *testing.T) {
	id := Identity{Index: 0, Emoji: "🦊", Label: "Fuchs"}
	if id.AnonymousID() != "🦊 Fuchs" {
		t.Errorf("got %q", id.AnonymousID())
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrSessionNotFound, KindNotFound},
		{ErrNotOwner, KindUnauthorized},
		{ErrSimplifyDisabled, KindForbidden},
		{ErrInvalidLevel, KindUnprocessable},
		{ErrUpstreamTimeout, KindUpstreamTimeout},
		{fmt.Errorf("%w: vendor down", ErrUpstream), KindUpstream},
		{ErrRateLimited, KindRateLimited},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
