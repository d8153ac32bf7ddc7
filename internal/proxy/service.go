package proxy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/cache"
	"readingroom/internal/metrics"
	"readingroom/internal/session"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// Default cache bounds and call timeouts
const (
	DefaultSynthesisCacheSize   = 500
	DefaultTranslationCacheSize = 1000
	DefaultTimeout              = 30 * time.Second
	DefaultSynthesisTimeout     = 60 * time.Second
)

// Cache names, used as metric labels
const (
	SynthesisCacheName   = "tts"
	TranslationCacheName = "translation"
)

// Languages without a synthesis voice are read by the closest supported one
var synthesisFallback = map[string]string{
	"uk": "ru",
	"bg": "ru",
}

// Config sizes the caches and bounds provider calls
type Config struct {
	SynthesisCacheSize   int
	TranslationCacheSize int
	Timeout              time.Duration
	SynthesisTimeout     time.Duration
}

// DefaultConfig returns the production bounds
func DefaultConfig() Config {
	return Config{
		SynthesisCacheSize:   DefaultSynthesisCacheSize,
		TranslationCacheSize: DefaultTranslationCacheSize,
		Timeout:              DefaultTimeout,
		SynthesisTimeout:     DefaultSynthesisTimeout,
	}
}

// Providers bundles the outbound collaborators
type Providers struct {
	Synthesizer interfaces.Synthesizer
	Translator  interfaces.Translator
	Simplifier  interfaces.Simplifier
	Transcriber interfaces.Transcriber
	Recognizer  interfaces.TextRecognizer
	Generator   interfaces.Generator
}

// Service resolves credentials, consults the caches and calls providers.
// ARCHITECTURAL DISCOVERY: Three exclusivity domains meet here (session registry,
// synthesis cache, translation cache) and none is ever held while another is taken
// or while a provider call is in flight.
type Service struct {
	sessions     *session.Registry
	providers    Providers
	audio        *cache.ByteCache
	translations *cache.LRU[string]
	config       Config
	logger       *zap.SugaredLogger
}

// NewService wires the proxy
func NewService(sessions *session.Registry, providers Providers, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	defaults := DefaultConfig()
	if cfg.SynthesisCacheSize <= 0 {
		cfg.SynthesisCacheSize = defaults.SynthesisCacheSize
	}
	if cfg.TranslationCacheSize <= 0 {
		cfg.TranslationCacheSize = defaults.TranslationCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = defaults.SynthesisTimeout
	}
	return &Service{
		sessions:     sessions,
		providers:    providers,
		audio:        cache.NewByteCache(SynthesisCacheName, cfg.SynthesisCacheSize),
		translations: cache.NewLRU[string](TranslationCacheName, cfg.TranslationCacheSize),
		config:       cfg,
		logger:       logger,
	}
}

// SynthesisInput is one text-to-speech request. Key overrides the session's key.
type SynthesisInput struct {
	Code     string
	Key      string
	Text     string
	VoiceID  string
	Language string
}

// TranslationInput is one translation request. Key overrides the session's key.
type TranslationInput struct {
	Code     string
	Key      string
	Provider string
	Text     string
	Target   string
}

// SimplifyInput is one simplification request, always scoped to a session
type SimplifyInput struct {
	Code  string
	Text  string
	Level string
}

// Synthesize returns audio for in.Text, from cache when an identical request was served before.
// FUNCTIONAL DISCOVERY: The key is never part of the fingerprint, so one class
// reading the same passage shares entries regardless of whose key paid for them.
func (s *Service) Synthesize(ctx context.Context, in SynthesisInput) ([]byte, error) {
	text := cache.NormalizeText(in.Text)
	if text == "" {
		return nil, types.ErrEmptyText
	}
	if err := types.ValidateText(text); err != nil {
		return nil, err
	}

	key, voice := in.Key, in.VoiceID
	if in.Code != "" {
		creds, err := s.sessions.Credentials(in.Code)
		if err != nil {
			return nil, err
		}
		if key == "" {
			key = creds.SynthesisKey
		}
		if voice == "" {
			voice = creds.VoiceID
		}
	} else if key == "" {
		return nil, ErrNoCredentialSource
	}
	if key == "" {
		return nil, types.ErrMissingSynthesisKey
	}
	if voice == "" {
		voice = types.DefaultVoiceID
	}
	language := in.Language
	if language == "" {
		language = types.SourceLanguage
	}
	if fallback, ok := synthesisFallback[language]; ok {
		language = fallback
	}

	fingerprint := cache.Fingerprint(SynthesisCacheName, text, voice, language)
	if audio, ok := s.audio.Get(fingerprint); ok {
		return audio, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.SynthesisTimeout)
	defer cancel()

	start := time.Now()
	audio, err := s.providers.Synthesizer.Synthesize(callCtx, interfaces.SynthesisRequest{
		Key:      key,
		Text:     text,
		VoiceID:  voice,
		Language: language,
	})
	metrics.RecordProviderCall("synthesis", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("synthesis call failed", "voice", voice, "language", language, "error", err)
		return nil, upstreamError("synthesis", err)
	}

	s.audio.Put(fingerprint, audio)
	return audio, nil
}

// Translate returns in.Text in the target language.
// German is the classroom language, so a German target passes the text through.
func (s *Service) Translate(ctx context.Context, in TranslationInput) (string, error) {
	text := cache.NormalizeText(in.Text)
	if text == "" {
		return "", types.ErrEmptyText
	}
	if err := types.ValidateText(text); err != nil {
		return "", err
	}
	if in.Target == "" {
		return "", types.ErrInvalidLanguage
	}
	if in.Target == types.SourceLanguage {
		return text, nil
	}

	key, provider, err := s.resolveAI(in.Code, in.Key, in.Provider)
	if err != nil {
		return "", err
	}

	// TECHNICAL DISCOVERY: Translations are provider-independent for caching purposes;
	// the fingerprint is text plus target only
	fingerprint := cache.Fingerprint(TranslationCacheName, text, in.Target)
	if translated, ok := s.translations.Get(fingerprint); ok {
		return translated, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	translated, err := s.providers.Translator.Translate(callCtx, interfaces.TranslationCall{
		Key:      key,
		Provider: provider,
		Text:     text,
		Target:   in.Target,
	})
	metrics.RecordProviderCall("translation", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("translation call failed", "target", in.Target, "provider", provider, "error", err)
		return "", upstreamError("translation", err)
	}

	s.translations.Put(fingerprint, translated)
	return translated, nil
}

// Simplify rewrites in.Text at a CEFR level. Only sessions with simplification
// enabled may use it, and results are not cached.
func (s *Service) Simplify(ctx context.Context, in SimplifyInput) (string, error) {
	text := cache.NormalizeText(in.Text)
	if text == "" {
		return "", types.ErrEmptyText
	}
	if err := types.ValidateText(text); err != nil {
		return "", err
	}
	if !types.IsValidSimplifyLevel(in.Level) {
		return "", types.ErrInvalidLevel
	}

	var creds types.Credentials
	err := s.sessions.Update(in.Code, func(sess *session.Session) error {
		if !sess.SimplificationEnabled() {
			return types.ErrSimplifyDisabled
		}
		creds = sess.Credentials()
		return nil
	})
	if err != nil {
		return "", err
	}
	if !creds.HasAI() {
		return "", types.ErrMissingAIKey
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	simplified, err := s.providers.Simplifier.Simplify(callCtx, interfaces.SimplifyCall{
		Key:      creds.AIKey,
		Provider: creds.AIProvider,
		Text:     text,
		Level:    in.Level,
	})
	metrics.RecordProviderCall("simplify", err, time.Since(start))
	if err != nil {
		s.logger.Warnw("simplify call failed", "level", in.Level, "error", err)
		return "", upstreamError("simplify", err)
	}
	return simplified, nil
}

// CacheStats is the read-only diagnostic view of both caches
type CacheStats struct {
	Synthesis   cache.Stats
	Translation cache.Stats
}

// Stats returns the current size and bound of both caches
func (s *Service) Stats() CacheStats {
	return CacheStats{
		Synthesis:   s.audio.Stats(),
		Translation: s.translations.Stats(),
	}
}
