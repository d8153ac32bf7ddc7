package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"readingroom/pkg/interfaces"
)

// Stub answers every call locally and deterministically. It backs development
// servers without a gateway and counts calls so cache behaviour can be observed.
type Stub struct {
	synthCalls     atomic.Int64
	translateCalls atomic.Int64
	simplifyCalls  atomic.Int64
	mediaCalls     atomic.Int64
	generateCalls  atomic.Int64
}

// NewStub creates a stub provider
func NewStub() *Stub {
	return &Stub{}
}

// Synthesize returns a fake audio payload derived from the request parameters
func (s *Stub) Synthesize(ctx context.Context, req interfaces.SynthesisRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.synthCalls.Add(1)
	return []byte(fmt.Sprintf("AUDIO[%s|%s]%s", req.VoiceID, req.Language, req.Text)), nil
}

// Translate tags the text with its target language
func (s *Stub) Translate(ctx context.Context, req interfaces.TranslationCall) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.translateCalls.Add(1)
	return fmt.Sprintf("[%s] %s", strings.ToUpper(req.Target), req.Text), nil
}

// Simplify tags the text with its level
func (s *Stub) Simplify(ctx context.Context, req interfaces.SimplifyCall) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.simplifyCalls.Add(1)
	return fmt.Sprintf("[%s] %s", req.Level, req.Text), nil
}

// Transcribe reports the engine, language and recording size
func (s *Stub) Transcribe(ctx context.Context, req interfaces.TranscriptionCall) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mediaCalls.Add(1)
	engine := req.Engine
	if engine == "" {
		engine = req.Provider
	}
	return fmt.Sprintf("[STT %s|%s] %d bytes", engine, req.Language, len(req.Audio)), nil
}

// RecognizeText reports the image type and size
func (s *Stub) RecognizeText(ctx context.Context, req interfaces.RecognitionCall) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mediaCalls.Add(1)
	return fmt.Sprintf("[OCR %s] %d bytes", req.MimeType, len(req.Image)), nil
}

// GenerateTasks returns one open question per sentence-ish chunk, at most three
func (s *Stub) GenerateTasks(ctx context.Context, req interfaces.GenerationCall) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.generateCalls.Add(1)
	type task struct {
		Type     string `json:"type"`
		Question string `json:"question"`
	}
	var tasks []task
	for _, part := range strings.Split(req.Text, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tasks = append(tasks, task{Type: "open", Question: "Worum geht es in: " + part + "?"})
		if len(tasks) == 3 {
			break
		}
	}
	if tasks == nil {
		tasks = []task{}
	}
	return json.Marshal(tasks)
}

// DescribeWord echoes the word with a tagged explanation
func (s *Stub) DescribeWord(ctx context.Context, req interfaces.GenerationCall) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.generateCalls.Add(1)
	details := map[string]string{"simple_explanation": "[WORD] " + req.Word}
	if req.Language != "" {
		details["translation"] = fmt.Sprintf("[%s] %s", strings.ToUpper(req.Language), req.Word)
	}
	return json.Marshal(details)
}

// SynthesisCalls returns how many synthesis calls reached the stub
func (s *Stub) SynthesisCalls() int64 { return s.synthCalls.Load() }

// TranslationCalls returns how many translation calls reached the stub
func (s *Stub) TranslationCalls() int64 { return s.translateCalls.Load() }

// SimplifyCalls returns how many simplification calls reached the stub
func (s *Stub) SimplifyCalls() int64 { return s.simplifyCalls.Load() }

// MediaCalls returns how many transcription and OCR calls reached the stub
func (s *Stub) MediaCalls() int64 { return s.mediaCalls.Load() }

// GenerateCalls returns how many task and word calls reached the stub
func (s *Stub) GenerateCalls() int64 { return s.generateCalls.Load() }
