package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/infra/metrics"
)

// proxyRequest is the minimal shape read out of every forwarded request
// body: just enough to pick a model, without caring about the rest of the
// OpenAI-compatible payload.
type proxyRequest struct {
	Model string `json:"model"`
}

// usagePayload is the minimal shape read out of a backend's response to
// extract token accounting, matching the OpenAI "usage" object plus the
// llama.cpp-style prompt-cache extension fields cache_n/prompt_n.
type usagePayload struct {
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		CacheN           int64 `json:"cache_n"`
		PromptN          int64 `json:"prompt_n"`
	} `json:"usage"`
}

// handleProxy returns a handler for one OpenAI-compatible endpoint family:
// it resolves the model named in the request body, ensures it is Routing
// (starting it if necessary), forwards the request to its backend process,
// and records accounting once the response completes.
func (s *Server) handleProxy(mode domain.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
			return
		}
		r.Body.Close()

		var pr proxyRequest
		if err := json.Unmarshal(body, &pr); err != nil || pr.Model == "" {
			writeError(w, http.StatusBadRequest, `request body must include a "model" field`)
			return
		}

		def, err := s.controller.Resolve(pr.Model)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if def.Mode != mode {
			writeDomainError(w, domain.ModeMismatch("model %q speaks mode %q, not %q", def.Name, def.Mode, mode))
			return
		}
		if !s.interfaces.Validate(mode, r.URL.Path) {
			writeDomainError(w, domain.ModeMismatch("path %q is not valid for mode %q", r.URL.Path, mode))
			return
		}

		rt, err := s.controller.Ensure(r.Context(), pr.Model)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		rt.IncFlight()
		metrics.RequestsInFlight.WithLabelValues(def.Name).Inc()
		defer func() {
			rt.DecFlight()
			metrics.RequestsInFlight.WithLabelValues(def.Name).Dec()
		}()

		target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", def.Port)}
		proxy := httputil.NewSingleHostReverseProxy(target)
		outcome := "ok"
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			outcome = "backend_unavailable"
			writeDomainError(w, domain.BackendUnavailable("model %q: %v", def.Name, err))
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))

		start := time.Now()
		rec := &usageRecorder{ResponseWriter: w, promptChars: len(body)}
		proxy.ServeHTTP(rec, r)

		metrics.RequestLatency.WithLabelValues(def.Name, string(mode)).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(def.Name, string(mode), outcome).Inc()

		s.recordUsage(def.Name, rec)
	}
}

func (s *Server) recordUsage(modelName string, rec *usageRecorder) {
	usage := rec.tokens()
	record := domain.RequestRecord{
		TimestampSec: float64(time.Now().Unix()),
		ModelName:    modelName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CacheTokens:  usage.CacheTokens,
		PromptTokens: usage.PromptTokens,
	}
	if err := s.accounting.RecordRequest(record); err != nil {
		log.Printf("api: record request for %q: %v", modelName, err)
	}
	metrics.TokensTotal.WithLabelValues(modelName, "prompt").Add(float64(usage.InputTokens))
	metrics.TokensTotal.WithLabelValues(modelName, "completion").Add(float64(usage.OutputTokens))
}

// usageRecorder wraps the ResponseWriter handed to the reverse proxy so the
// forwarded response can be inspected for token usage without buffering it
// away from the client: non-streaming bodies are captured whole (chat
// completions responses are small), while SSE bodies are scanned line by
// line as they are written through.
type usageRecorder struct {
	http.ResponseWriter

	promptChars int
	headerSent  bool
	streaming   bool
	buf         bytes.Buffer

	chunkCount            int64
	haveUsage             bool
	usagePromptTokens     int64
	usageCompletionTokens int64
	usageCacheTokens      int64
	usagePromptNTokens    int64
}

func (u *usageRecorder) WriteHeader(status int) {
	if strings.HasPrefix(u.Header().Get("Content-Type"), "text/event-stream") {
		u.streaming = true
	}
	u.headerSent = true
	u.ResponseWriter.WriteHeader(status)
}

func (u *usageRecorder) Write(p []byte) (int, error) {
	if !u.headerSent {
		u.WriteHeader(http.StatusOK)
	}
	if u.streaming {
		u.scanSSE(p)
	} else {
		u.buf.Write(p)
	}
	return u.ResponseWriter.Write(p)
}

func (u *usageRecorder) Flush() {
	if f, ok := u.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (u *usageRecorder) scanSSE(p []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "data: ")
		if line == "" || line == "[DONE]" {
			continue
		}
		u.chunkCount++
		var up usagePayload
		if err := json.Unmarshal([]byte(line), &up); err == nil && up.Usage.CompletionTokens > 0 {
			u.haveUsage = true
			u.usagePromptTokens = up.Usage.PromptTokens
			u.usageCompletionTokens = up.Usage.CompletionTokens
			u.usageCacheTokens = up.Usage.CacheN
			u.usagePromptNTokens = up.Usage.PromptN
		}
	}
}

// tokenUsage is the full token accounting recordUsage persists: the
// model's input/output counts, plus the prompt-cache split (CacheTokens
// served from cache, PromptTokens freshly computed) when the backend
// reported one.
type tokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	CacheTokens  int64
	PromptTokens int64
}

// tokens returns the best available token accounting: the backend's own
// usage object when it reported one — including cache_n/prompt_n when
// present. A streamed response that never reported usage is recorded as
// zero tokens; a non-streamed body without usage falls back to a
// character-count estimate for input tokens, with zero output tokens (chunks
// are only counted on streams). When the
// backend never reports a cache split, PromptTokens defaults to InputTokens:
// every token counted as freshly computed, nothing served from cache.
func (u *usageRecorder) tokens() tokenUsage {
	fillPromptFallback := func(out tokenUsage) tokenUsage {
		if out.CacheTokens == 0 && out.PromptTokens == 0 {
			out.PromptTokens = out.InputTokens
		}
		return out
	}

	if u.haveUsage {
		return fillPromptFallback(tokenUsage{
			InputTokens:  u.usagePromptTokens,
			OutputTokens: u.usageCompletionTokens,
			CacheTokens:  u.usageCacheTokens,
			PromptTokens: u.usagePromptNTokens,
		})
	}
	if !u.streaming && u.buf.Len() > 0 {
		var up usagePayload
		if err := json.Unmarshal(u.buf.Bytes(), &up); err == nil && (up.Usage.PromptTokens > 0 || up.Usage.CompletionTokens > 0) {
			return fillPromptFallback(tokenUsage{
				InputTokens:  up.Usage.PromptTokens,
				OutputTokens: up.Usage.CompletionTokens,
				CacheTokens:  up.Usage.CacheN,
				PromptTokens: up.Usage.PromptN,
			})
		}
	}

	if u.streaming {
		return tokenUsage{}
	}
	estIn := int64(u.promptChars / 4)
	return tokenUsage{InputTokens: estIn, OutputTokens: u.chunkCount, PromptTokens: estIn}
}
