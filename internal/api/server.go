package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/hub"
	"readingroom/internal/metrics"
	"readingroom/internal/proxy"
	"readingroom/internal/session"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// maxBodyBytes bounds request bodies; shared text is the largest legitimate payload
const maxBodyBytes = types.MaxTextBytes + 64*1024

// maxMediaBodyBytes bounds uploads that carry a recording or a base64 page scan
const maxMediaBodyBytes = types.MaxMediaBytes/3*4 + 64*1024

// ConnectionStats avoids tight coupling to websocket.Registry
type ConnectionStats interface {
	GetStats() map[string]int
}

// Deps bundles the components the HTTP surface calls into
type Deps struct {
	Hub         *hub.Hub
	Sessions    *session.Registry
	Proxy       *proxy.Service
	Connections ConnectionStats
	Activity    interfaces.ActivityLog // nil when the activity log is disabled
	Logger      *zap.SugaredLogger
	Origins     []string
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external
// clients and internal components. No business logic, only decoding, error mapping
// and JSON encoding.
type Server struct {
	hub         *hub.Hub
	sessions    *session.Registry
	proxy       *proxy.Service
	connections ConnectionStats
	activity    interfaces.ActivityLog
	logger      *zap.SugaredLogger
	origins     map[string]bool
	started     time.Time
	router      *http.ServeMux
}

// NewServer wires the routes
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		hub:         deps.Hub,
		sessions:    deps.Sessions,
		proxy:       deps.Proxy,
		connections: deps.Connections,
		activity:    deps.Activity,
		logger:      logger,
		started:     time.Now(),
		router:      http.NewServeMux(),
	}
	if len(deps.Origins) > 0 {
		s.origins = make(map[string]bool, len(deps.Origins))
		for _, o := range deps.Origins {
			s.origins[o] = true
		}
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/session/create", s.createSession)
	s.router.HandleFunc("POST /api/session/join", s.joinSession)
	s.router.HandleFunc("POST /api/session/end", s.endSession)
	s.router.HandleFunc("POST /api/session/set-text", s.setText)
	s.router.HandleFunc("GET /api/session/status/{code}", s.sessionStatus)
	s.router.HandleFunc("GET /api/session/settings/{code}", s.sessionSettings)
	s.router.HandleFunc("GET /api/session/text/{code}", s.sessionText)

	s.router.HandleFunc("POST /api/tts", s.synthesize)
	s.router.HandleFunc("POST /api/translate", s.translate)
	s.router.HandleFunc("POST /api/simplify-text", s.simplify)
	s.router.HandleFunc("POST /api/speech-to-text", s.speechToText)
	s.router.HandleFunc("POST /api/speech-to-text-scribe", s.speechToTextScribe)
	s.router.HandleFunc("POST /api/ocr", s.recognizeText)
	s.router.HandleFunc("POST /api/generate-tasks", s.generateTasks)
	s.router.HandleFunc("POST /api/word-info", s.wordInfo)

	s.router.HandleFunc("GET /api/cache-stats", s.cacheStats)
	s.router.HandleFunc("GET /api/activity", s.recentActivity)
	s.router.HandleFunc("GET /health", s.healthCheck)
	s.router.Handle("GET /metrics", metrics.Handler())
}

// ServeHTTP applies CORS and metrics around the mux
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.Middleware(s.corsMiddleware(s.router)).ServeHTTP(w, r)
}

// Request/response shapes
type codeRequest struct {
	Code string `json:"code"`
}

type ownerRequest struct {
	Code         string `json:"code"`
	ConnectionID string `json:"connection_id"`
	Text         string `json:"text"`
}

type createSessionResponse struct {
	Success    bool      `json:"success"`
	Code       string    `json:"code"`
	Expires    time.Time `json:"expires"`
	HasPIN     bool      `json:"has_pin"`
	OwnerToken string    `json:"owner_token"`
}

type joinSessionResponse struct {
	Success      bool   `json:"success"`
	Code         string `json:"code"`
	StudentCount int    `json:"student_count"`
}

type settingsResponse struct {
	Code string `json:"code"`
	types.PublicSettings
}

type textResponse struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type synthesizeRequest struct {
	SessionCode string `json:"session_code"`
	APIKey      string `json:"api_key"`
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	Language    string `json:"language_code"`
}

type translateRequest struct {
	SessionCode string `json:"session_code"`
	APIKey      string `json:"api_key"`
	Provider    string `json:"provider"`
	Text        string `json:"text"`
	Target      string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type simplifyRequest struct {
	SessionCode string `json:"session_code"`
	Text        string `json:"text"`
	Level       string `json:"level"`
}

type simplifyResponse struct {
	OriginalText   string `json:"original_text"`
	SimplifiedText string `json:"simplified_text"`
	Level          string `json:"level"`
}

type ocrRequest struct {
	SessionCode string `json:"session_code"`
	APIKey      string `json:"api_key"`
	Provider    string `json:"provider"`
	Image       []byte `json:"image"`
	MimeType    string `json:"mime_type"`
}

type transcriptResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type generateTasksRequest struct {
	SessionCode string `json:"session_code"`
	Text        string `json:"text"`
}

type generateTasksResponse struct {
	Success bool            `json:"success"`
	Tasks   json.RawMessage `json:"tasks"`
}

type wordInfoRequest struct {
	SessionCode string `json:"session_code"`
	Word        string `json:"word"`
	Target      string `json:"target_language"`
}

type cacheStatsResponse struct {
	SynthesisCache   cacheSummary `json:"tts_cache"`
	TranslationCache cacheSummary `json:"translation_cache"`
	ActiveSessions   int          `json:"active_sessions"`
}

type cacheSummary struct {
	Size      int    `json:"size"`
	Max       int    `json:"max"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type activityResponse struct {
	Events []types.ActivityEvent `json:"events"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Database    string         `json:"database"`
	Sessions    int            `json:"sessions"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: Sessions created over HTTP start unowned; the teacher's
// websocket attaches with the returned code and owner token
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	grant, err := s.hub.CreateDetached(req)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, createSessionResponse{
		Success:    true,
		Code:       grant.Code,
		Expires:    grant.Expires,
		HasPIN:     grant.HasPIN,
		OwnerToken: grant.OwnerToken,
	})
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.lookup(req.Code)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, joinSessionResponse{
		Success:      true,
		Code:         status.Code,
		StudentCount: status.StudentCount,
	})
}

// endSession is owner-only: connection_id must be the attached owner connection
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.hub.EndSession(req.ConnectionID, req.Code); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) setText(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.hub.UpdateText(req.ConnectionID, req.Code, req.Text); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.lookup(r.PathValue("code"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, status)
}

func (s *Server) sessionSettings(w http.ResponseWriter, r *http.Request) {
	var resp settingsResponse
	err := s.view(r.PathValue("code"), func(sess *session.Session) {
		resp = settingsResponse{Code: sess.Code(), PublicSettings: sess.PublicSettings()}
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) sessionText(w http.ResponseWriter, r *http.Request) {
	var resp textResponse
	err := s.view(r.PathValue("code"), func(sess *session.Session) {
		resp = textResponse{Code: sess.Code(), Text: sess.Text()}
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	audio, err := s.proxy.Synthesize(r.Context(), proxy.SynthesisInput{
		Code:     req.SessionCode,
		Key:      req.APIKey,
		Text:     req.Text,
		VoiceID:  req.VoiceID,
		Language: req.Language,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Target == "" {
		req.Target = types.SourceLanguage
	}
	translated, err := s.proxy.Translate(r.Context(), proxy.TranslationInput{
		Code:     req.SessionCode,
		Key:      req.APIKey,
		Provider: req.Provider,
		Text:     req.Text,
		Target:   req.Target,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, translateResponse{TranslatedText: translated})
}

func (s *Server) simplify(w http.ResponseWriter, r *http.Request) {
	var req simplifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	simplified, err := s.proxy.Simplify(r.Context(), proxy.SimplifyInput{
		Code:  req.SessionCode,
		Text:  req.Text,
		Level: req.Level,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, simplifyResponse{
		OriginalText:   req.Text,
		SimplifiedText: simplified,
		Level:          req.Level,
	})
}

func (s *Server) speechToText(w http.ResponseWriter, r *http.Request) {
	s.transcribe(w, r, "")
}

func (s *Server) speechToTextScribe(w http.ResponseWriter, r *http.Request) {
	s.transcribe(w, r, proxy.EngineScribe)
}

// transcribe reads a multipart upload: the recording under "audio" plus
// session_code, api_key, provider and language form fields
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request, engine string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaBodyBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, types.ErrMediaTooLarge)
			return
		}
		s.sendError(w, types.ErrInvalidPayload)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.sendError(w, types.ErrEmptyMedia)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, types.MaxMediaBytes+1))
	if err != nil {
		s.sendError(w, types.ErrInvalidPayload)
		return
	}

	language := r.FormValue("language")
	text, err := s.proxy.Transcribe(r.Context(), proxy.TranscriptionInput{
		Code:     r.FormValue("session_code"),
		Key:      r.FormValue("api_key"),
		Provider: r.FormValue("provider"),
		Engine:   engine,
		Audio:    audio,
		MimeType: header.Header.Get("Content-Type"),
		Language: language,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	if language == "" {
		language = types.SourceLanguage
	}
	s.sendJSON(w, http.StatusOK, transcriptResponse{Text: text, Language: language, Provider: engine})
}

func (s *Server) recognizeText(w http.ResponseWriter, r *http.Request) {
	var req ocrRequest
	if !s.decodeLimited(w, r, &req, maxMediaBodyBytes, types.ErrMediaTooLarge) {
		return
	}
	text, err := s.proxy.RecognizeText(r.Context(), proxy.RecognitionInput{
		Code:     req.SessionCode,
		Key:      req.APIKey,
		Provider: req.Provider,
		Image:    req.Image,
		MimeType: req.MimeType,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, transcriptResponse{Text: text})
}

func (s *Server) generateTasks(w http.ResponseWriter, r *http.Request) {
	var req generateTasksRequest
	if !s.decode(w, r, &req) {
		return
	}
	tasks, err := s.proxy.GenerateTasks(r.Context(), proxy.TaskInput{
		Code: req.SessionCode,
		Text: req.Text,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, generateTasksResponse{Success: true, Tasks: tasks})
}

func (s *Server) wordInfo(w http.ResponseWriter, r *http.Request) {
	var req wordInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	info, err := s.proxy.DescribeWord(r.Context(), proxy.WordInput{
		Code:   req.SessionCode,
		Word:   req.Word,
		Target: req.Target,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, info)
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.proxy.Stats()
	s.sendJSON(w, http.StatusOK, cacheStatsResponse{
		SynthesisCache:   cacheSummary(stats.Synthesis),
		TranslationCache: cacheSummary(stats.Translation),
		ActiveSessions:   s.sessions.Count(),
	})
}

func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		s.sendJSON(w, http.StatusOK, activityResponse{Events: []types.ActivityEvent{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.activity.Recent(r.Context(), limit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, activityResponse{Events: events})
}

// FUNCTIONAL DISCOVERY: Health is degraded, not failed, when the optional activity
// log is unavailable, because sessions never depend on it
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Database:  "disabled",
		Sessions:  s.sessions.Count(),
	}
	if s.connections != nil {
		resp.Connections = s.connections.GetStats()
	}
	if s.activity != nil {
		resp.Database = "healthy"
		if err := s.activity.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unavailable"
			s.logger.Warnw("activity log health check failed", "error", err)
		}
	}
	if !s.hub.IsRunning() {
		resp.Status = "unhealthy"
		s.sendJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// lookup validates the code shape before touching the registry
func (s *Server) lookup(code string) (types.Status, error) {
	code = types.NormalizeCode(code)
	if !types.IsValidCode(code) {
		return types.Status{}, types.ErrInvalidCode
	}
	return s.sessions.Lookup(code)
}

func (s *Server) view(code string, fn func(sess *session.Session)) error {
	code = types.NormalizeCode(code)
	if !types.IsValidCode(code) {
		return types.ErrInvalidCode
	}
	return s.sessions.View(code, fn)
}

// decode reads a bounded JSON body; it writes the error response itself
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return s.decodeLimited(w, r, v, maxBodyBytes, types.ErrTextTooLarge)
}

func (s *Server) decodeLimited(w http.ResponseWriter, r *http.Request, v interface{}, limit int64, tooLargeErr error) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, tooLargeErr)
			return false
		}
		s.sendError(w, types.ErrInvalidPayload)
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnw("failed to encode response", "error", err)
	}
}

// sendError maps an error category onto a status code.
// TECHNICAL DISCOVERY: Internal errors keep their detail in the log only; the
// client sees the status text.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request failed", "error", err)
		message = http.StatusText(status)
	}
	s.sendJSON(w, status, ErrorResponse{
		Error:   types.ErrorKind(err),
		Code:    status,
		Message: message,
	})
}

// StatusFor returns the HTTP status for an error category
func StatusFor(err error) int {
	switch types.ErrorKind(err) {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindUnauthorized, types.KindForbidden:
		return http.StatusForbidden
	case types.KindUnprocessable:
		return http.StatusBadRequest
	case types.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.KindUpstream:
		return http.StatusBadGateway
	case types.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware allows configured origins, or any origin when none are configured
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.origins == nil:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case s.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
