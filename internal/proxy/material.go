package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"readingroom/internal/cache"
	"readingroom/internal/metrics"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// Speech and recognition defaults
const (
	EngineScribe     = "scribe"
	DefaultImageType = "image/jpeg"

	// minScribeAudio rejects clicks and empty recordings before they reach the vendor
	minScribeAudio = 100
)

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// wordNoise strips punctuation a tap on the reading view picks up with the word
var wordNoise = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// TranscriptionInput is one speech-to-text request. Engine "scribe" bills the
// synthesis key; anything else goes to the AI provider.
type TranscriptionInput struct {
	Code     string
	Key      string
	Provider string
	Engine   string
	Audio    []byte
	MimeType string
	Language string
}

// RecognitionInput is one OCR request over a photographed page
type RecognitionInput struct {
	Code     string
	Key      string
	Provider string
	Image    []byte
	MimeType string
}

// TaskInput asks for comprehension tasks on a session's text
type TaskInput struct {
	Code string
	Text string
}

// WordInput asks for an explanation of one word, optionally translated to Target
type WordInput struct {
	Code   string
	Word   string
	Target string
}

// Transcribe turns a recording into text. Nothing is cached; recordings are
// never repeated byte for byte.
func (s *Service) Transcribe(ctx context.Context, in TranscriptionInput) (string, error) {
	if err := checkMedia(in.Audio); err != nil {
		return "", err
	}
	language := in.Language
	if language == "" {
		language = types.SourceLanguage
	}

	call := interfaces.TranscriptionCall{
		Engine:   in.Engine,
		Audio:    in.Audio,
		MimeType: in.MimeType,
		Language: language,
	}
	if in.Engine == EngineScribe {
		if len(in.Audio) < minScribeAudio {
			return "", types.ErrAudioTooShort
		}
		key, err := s.resolveSynthesisKey(in.Code, in.Key)
		if err != nil {
			return "", err
		}
		call.Key = key
	} else {
		key, provider, err := s.resolveAI(in.Code, in.Key, in.Provider)
		if err != nil {
			return "", err
		}
		call.Key, call.Provider = key, provider
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.providers.Transcriber.Transcribe(callCtx, call)
	metrics.RecordProviderCall("transcription", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("transcription call failed", "engine", in.Engine, "language", language, "bytes", len(in.Audio), "error", err)
		return "", upstreamError("transcription", err)
	}
	return strings.TrimSpace(text), nil
}

// RecognizeText reads the text on a photographed page
func (s *Service) RecognizeText(ctx context.Context, in RecognitionInput) (string, error) {
	if err := checkMedia(in.Image); err != nil {
		return "", err
	}
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = DefaultImageType
	}
	if !imageTypes[mimeType] {
		return "", types.ErrUnsupportedMedia
	}
	key, provider, err := s.resolveAI(in.Code, in.Key, in.Provider)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.providers.Recognizer.RecognizeText(callCtx, interfaces.RecognitionCall{
		Key:      key,
		Provider: provider,
		Image:    in.Image,
		MimeType: mimeType,
	})
	metrics.RecordProviderCall("ocr", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("ocr call failed", "mime_type", mimeType, "provider", provider, "error", err)
		return "", upstreamError("ocr", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.ErrNoTextRecognized
	}
	return text, nil
}

// GenerateTasks asks the session's AI provider for comprehension tasks. The
// result is a JSON array the teacher reviews before releasing it.
func (s *Service) GenerateTasks(ctx context.Context, in TaskInput) (json.RawMessage, error) {
	text := cache.NormalizeText(in.Text)
	if text == "" {
		return nil, types.ErrEmptyText
	}
	if err := types.ValidateText(text); err != nil {
		return nil, err
	}
	if in.Code == "" {
		return nil, types.ErrInvalidCode
	}
	key, provider, err := s.resolveAI(in.Code, "", "")
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.providers.Generator.GenerateTasks(callCtx, interfaces.GenerationCall{
		Key:      key,
		Provider: provider,
		Text:     text,
	})
	if err == nil {
		raw, _, err = types.ValidateTasks(raw)
		if err != nil {
			err = ErrMalformedMaterial
		}
	}
	metrics.RecordProviderCall("tasks", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("task generation failed", "provider", provider, "error", err)
		return nil, upstreamError("tasks", err)
	}
	return raw, nil
}

// DescribeWord explains a word for a participant. Without a session AI key the
// cleaned word comes back with Available false instead of an error.
func (s *Service) DescribeWord(ctx context.Context, in WordInput) (types.WordInfo, error) {
	original := strings.TrimSpace(in.Word)
	if original == "" {
		return types.WordInfo{}, types.ErrInvalidWord
	}
	word := strings.TrimSpace(wordNoise.ReplaceAllString(original, ""))
	if word == "" {
		return types.WordInfo{}, types.ErrInvalidWord
	}
	info := types.WordInfo{Word: word, OriginalWord: original}
	if in.Code == "" {
		return info, nil
	}

	creds, err := s.sessions.Credentials(in.Code)
	if err != nil {
		return types.WordInfo{}, err
	}
	if !creds.HasAI() {
		return info, nil
	}
	provider := creds.AIProvider
	if provider == "" {
		provider = types.DefaultAIProvider
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.providers.Generator.DescribeWord(callCtx, interfaces.GenerationCall{
		Key:      creds.AIKey,
		Provider: provider,
		Word:     word,
		Language: in.Target,
	})
	if err == nil && !isObject(raw) {
		err = ErrMalformedMaterial
	}
	metrics.RecordProviderCall("word_info", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("word info call failed", "provider", provider, "error", err)
		return types.WordInfo{}, upstreamError("word_info", err)
	}

	info.Available = true
	info.Details = raw
	return info, nil
}

// resolveAI picks the AI key and provider. Explicit values win over the session's.
func (s *Service) resolveAI(code, key, provider string) (string, string, error) {
	if code != "" {
		creds, err := s.sessions.Credentials(code)
		if err != nil {
			return "", "", err
		}
		if key == "" {
			key = creds.AIKey
		}
		if provider == "" {
			provider = creds.AIProvider
		}
	} else if key == "" {
		return "", "", ErrNoCredentialSource
	}
	if key == "" {
		return "", "", types.ErrMissingAIKey
	}
	if provider == "" {
		provider = types.DefaultAIProvider
	}
	return key, provider, nil
}

func (s *Service) resolveSynthesisKey(code, key string) (string, error) {
	if code != "" {
		creds, err := s.sessions.Credentials(code)
		if err != nil {
			return "", err
		}
		if key == "" {
			key = creds.SynthesisKey
		}
	} else if key == "" {
		return "", ErrNoCredentialSource
	}
	if key == "" {
		return "", types.ErrMissingSynthesisKey
	}
	return key, nil
}

func checkMedia(data []byte) error {
	if len(data) == 0 {
		return types.ErrEmptyMedia
	}
	if len(data) > types.MaxMediaBytes {
		return types.ErrMediaTooLarge
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	return json.Valid(raw)
}
