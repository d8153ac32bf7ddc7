package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"readingroom/pkg/interfaces"
)

// KeyHeader carries the session's provider key to the gateway
const KeyHeader = "X-Provider-Key"

// maxAudioBytes bounds a synthesis response body
const maxAudioBytes = 20 << 20

// Gateway speaks one uniform JSON contract to a provider gateway that fronts the
// actual speech and language vendors.
// ARCHITECTURAL DISCOVERY: Vendor payload formats stay behind the gateway. The core
// only ever sees audio bytes or a text field.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewGateway creates a gateway client. timeout caps every call on top of the
// caller's context deadline.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type synthesizeBody struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voice_id"`
	Language string `json:"language,omitempty"`
}

type translateBody struct {
	Text     string `json:"text"`
	Target   string `json:"target"`
	Provider string `json:"provider"`
}

type simplifyBody struct {
	Text     string `json:"text"`
	Level    string `json:"level"`
	Provider string `json:"provider"`
}

type transcribeBody struct {
	Audio    []byte `json:"audio"`
	MimeType string `json:"mime_type,omitempty"`
	Language string `json:"language"`
	Engine   string `json:"engine,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type recognizeBody struct {
	Image    []byte `json:"image"`
	MimeType string `json:"mime_type"`
	Provider string `json:"provider"`
}

type generateBody struct {
	Text     string `json:"text,omitempty"`
	Word     string `json:"word,omitempty"`
	Language string `json:"target_language,omitempty"`
	Provider string `json:"provider"`
}

type textResponse struct {
	Text string `json:"text"`
}

// maxMaterialBytes bounds generated tasks and word details
const maxMaterialBytes = 1 << 20

// Synthesize returns the audio produced for req
func (g *Gateway) Synthesize(ctx context.Context, req interfaces.SynthesisRequest) ([]byte, error) {
	resp, err := g.post(ctx, "/synthesize", req.Key, synthesizeBody{
		Text:     req.Text,
		VoiceID:  req.VoiceID,
		Language: req.Language,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayResponse, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrGatewayResponse)
	}
	return audio, nil
}

// Translate returns req.Text rendered in req.Target
func (g *Gateway) Translate(ctx context.Context, req interfaces.TranslationCall) (string, error) {
	return g.callText(ctx, "/translate", req.Key, translateBody{
		Text:     req.Text,
		Target:   req.Target,
		Provider: req.Provider,
	})
}

// Simplify returns req.Text rewritten at req.Level
func (g *Gateway) Simplify(ctx context.Context, req interfaces.SimplifyCall) (string, error) {
	return g.callText(ctx, "/simplify", req.Key, simplifyBody{
		Text:     req.Text,
		Level:    req.Level,
		Provider: req.Provider,
	})
}

// Transcribe returns the text spoken in req.Audio. Media bytes travel base64
// encoded inside the JSON body.
func (g *Gateway) Transcribe(ctx context.Context, req interfaces.TranscriptionCall) (string, error) {
	return g.callText(ctx, "/transcribe", req.Key, transcribeBody{
		Audio:    req.Audio,
		MimeType: req.MimeType,
		Language: req.Language,
		Engine:   req.Engine,
		Provider: req.Provider,
	})
}

// RecognizeText returns the text printed in req.Image
func (g *Gateway) RecognizeText(ctx context.Context, req interfaces.RecognitionCall) (string, error) {
	return g.callText(ctx, "/ocr", req.Key, recognizeBody{
		Image:    req.Image,
		MimeType: req.MimeType,
		Provider: req.Provider,
	})
}

// GenerateTasks returns the gateway's task array unchanged
func (g *Gateway) GenerateTasks(ctx context.Context, req interfaces.GenerationCall) (json.RawMessage, error) {
	return g.callRaw(ctx, "/generate-tasks", req.Key, generateBody{
		Text:     req.Text,
		Provider: req.Provider,
	})
}

// DescribeWord returns the gateway's word object unchanged
func (g *Gateway) DescribeWord(ctx context.Context, req interfaces.GenerationCall) (json.RawMessage, error) {
	return g.callRaw(ctx, "/word-info", req.Key, generateBody{
		Word:     req.Word,
		Language: req.Language,
		Provider: req.Provider,
	})
}

func (g *Gateway) callRaw(ctx context.Context, endpoint, key string, body interface{}) (json.RawMessage, error) {
	resp, err := g.post(ctx, endpoint, key, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMaterialBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayResponse, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrGatewayResponse)
	}
	return json.RawMessage(raw), nil
}

func (g *Gateway) callText(ctx context.Context, endpoint, key string, body interface{}) (string, error) {
	resp, err := g.post(ctx, endpoint, key, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result textResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayResponse, err)
	}
	return strings.TrimSpace(result.Text), nil
}

// post sends body and returns a 200 response. Any other status is drained into
// the error without echoing the key.
func (g *Gateway) post(ctx context.Context, endpoint, key string, body interface{}) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(KeyHeader, key)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayStatus, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}
