package interfaces

import (
	"context"
	"encoding/json"
)

// SynthesisRequest is one text-to-speech call
type SynthesisRequest struct {
	Key      string
	Text     string
	VoiceID  string
	Language string
}

// TranslationCall is one translation call
type TranslationCall struct {
	Key      string
	Provider string
	Text     string
	Target   string
}

// SimplifyCall is one text simplification call
type SimplifyCall struct {
	Key      string
	Provider string
	Text     string
	Level    string
}

// TranscriptionCall is one speech-to-text call. Engine "scribe" runs on the
// synthesis vendor and carries the synthesis key.
type TranscriptionCall struct {
	Key      string
	Provider string
	Engine   string
	Audio    []byte
	MimeType string
	Language string
}

// RecognitionCall is one OCR call over an image
type RecognitionCall struct {
	Key      string
	Provider string
	Image    []byte
	MimeType string
}

// GenerationCall asks the AI provider for structured classroom material
type GenerationCall struct {
	Key      string
	Provider string
	Text     string
	Word     string
	Language string
}

// Synthesizer turns text into audio bytes
// ARCHITECTURAL DISCOVERY: Provider payloads are opaque to the core. Results are
// cached as returned and never inspected.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// Translator translates text into a target language
type Translator interface {
	Translate(ctx context.Context, req TranslationCall) (string, error)
}

// Simplifier rewrites text at a CEFR reading level
type Simplifier interface {
	Simplify(ctx context.Context, req SimplifyCall) (string, error)
}

// Transcriber turns recorded speech into text
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionCall) (string, error)
}

// TextRecognizer reads the text printed in an image
type TextRecognizer interface {
	RecognizeText(ctx context.Context, req RecognitionCall) (string, error)
}

// Generator produces JSON material for a text. Results are passed through to
// clients after a shape check only.
type Generator interface {
	GenerateTasks(ctx context.Context, req GenerationCall) (json.RawMessage, error)
	DescribeWord(ctx context.Context, req GenerationCall) (json.RawMessage, error)
}
