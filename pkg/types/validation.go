package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FUNCTIONAL DISCOVERY: Codes are read aloud and typed from a projector, so the
// alphabet drops 0/O and 1/I/L look-alikes
const (
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
)

// MaxTextBytes bounds shared text and proxy inputs
const MaxTextBytes = 256 * 1024

// MaxMediaBytes bounds uploaded recordings and scanned pages
const MaxMediaBytes = 10 << 20

// NormalizeCode uppercases and trims a user-supplied session code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCode reports whether a normalized code has the right length and alphabet
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(CodeAlphabet, r) {
			return false
		}
	}
	return true
}

// WithDefaults fills the optional provider fields
func (c Credentials) WithDefaults() Credentials {
	if c.AIProvider == "" {
		c.AIProvider = DefaultAIProvider
	}
	if c.VoiceID == "" {
		c.VoiceID = DefaultVoiceID
	}
	if c.STTProvider == "" {
		c.STTProvider = DefaultSTTProvider
	}
	return c
}

// Validate checks the mandatory synthesis key
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.SynthesisKey) == "" {
		return ErrMissingSynthesisKey
	}
	return nil
}

// HasAI reports whether an AI provider key is configured
func (c Credentials) HasAI() bool {
	return c.AIKey != ""
}

// Public strips key material down to presence flags
func (c Credentials) Public() PublicSettings {
	return PublicSettings{
		STTProvider:  c.STTProvider,
		VoiceID:      c.VoiceID,
		HasSynthesis: c.SynthesisKey != "",
		HasAI:        c.AIKey != "",
	}
}

// IsValidReadingLevel reports whether a participant may report this level
func IsValidReadingLevel(level string) bool {
	return contains(ReadingLevels, level)
}

// IsValidSimplifyLevel reports whether text may be simplified to this level
func IsValidSimplifyLevel(level string) bool {
	return contains(SimplifyLevels, level)
}

// LanguageName returns the display name for a language code, or the code itself
func LanguageName(code string) string {
	if name, ok := LanguageNames[code]; ok {
		return name
	}
	return code
}

// ValidateText enforces the shared-text size limit
func ValidateText(text string) error {
	if len(text) > MaxTextBytes {
		return ErrTextTooLarge
	}
	return nil
}

// ValidateSettings accepts a JSON object, treating an absent payload as empty
// TECHNICAL DISCOVERY: Settings are opaque to the server but must stay an object
// because clients merge them key by key
func ValidateSettings(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, ErrInvalidSettings
	}
	return raw, nil
}

// ValidateTasks accepts a JSON array, treating an absent payload as empty
func ValidateTasks(raw json.RawMessage) (json.RawMessage, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("[]"), 0, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, 0, ErrInvalidTasks
	}
	return raw, len(list), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
