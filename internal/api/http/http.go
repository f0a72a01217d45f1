// Package http exposes a command-handling core over a small JSON API:
// submit a command, read an aggregate's current state, and long-poll the
// outbox stream. It is a thin adapter — all business logic lives in
// internal/eventcore and the domain package wired in by the caller.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerflow/eventcore/internal/eventcore/command"
	"github.com/ledgerflow/eventcore/internal/eventcore/handler"
	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/outbox"
	"github.com/ledgerflow/eventcore/internal/eventcore/repository"
	platformerrors "github.com/ledgerflow/eventcore/internal/platform/errors"
)

// CommandDecoder turns a raw JSON command body into a stream id and typed
// command payload. Domain packages supply this since only they know how to
// tell a deposit from a withdrawal in the wire format.
type CommandDecoder[C any] func(raw json.RawMessage) (journal.StreamID, C, error)

// Options configures a HandlerSet.
type Options[S, E, C, R, N any] struct {
	Handler      *handler.Handler[S, E, C, R, N]
	Repository   *repository.Repository[S, E, R]
	OutboxReader *outbox.Reader[N]
	Decode       CommandDecoder[C]
	Logger       *slog.Logger
}

// HandlerSet bundles the command/query/outbox HTTP handlers for one
// aggregate type.
type HandlerSet[S, E, C, R, N any] struct {
	handler  *handler.Handler[S, E, C, R, N]
	repo     *repository.Repository[S, E, R]
	reader   *outbox.Reader[N]
	decode   CommandDecoder[C]
	logger   *slog.Logger
}

// NewHandlerSet constructs a HandlerSet from opts.
func NewHandlerSet[S, E, C, R, N any](opts Options[S, E, C, R, N]) *HandlerSet[S, E, C, R, N] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerSet[S, E, C, R, N]{
		handler: opts.Handler,
		repo:    opts.Repository,
		reader:  opts.OutboxReader,
		decode:  opts.Decode,
		logger:  logger,
	}
}

// Register attaches all handlers to mux.
func (h *HandlerSet[S, E, C, R, N]) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /commands", h.CommandsHandler())
	mux.HandleFunc("GET /streams/{id}", h.StreamHandler())
	mux.HandleFunc("GET /outbox/stream", h.OutboxStreamHandler())
}

type commandResponse struct {
	Rejected bool     `json:"rejected"`
	Reasons  []string `json:"reasons,omitempty"`
}

// CommandsHandler decodes a command envelope, runs it through the
// CommandHandler, and reports whether it was accepted or rejected.
func (h *HandlerSet[S, E, C, R, N]) CommandsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.decode == nil {
			http.Error(w, "command decoding is not configured", http.StatusServiceUnavailable)
			return
		}
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		streamID, payload, err := h.decode(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var envelope struct {
			Metadata map[string]string `json:"metadata"`
		}
		_ = json.Unmarshal(raw, &envelope)

		cmd := command.New[C](streamID, payload, envelope.Metadata)
		outcome, err := h.handler.Process(r.Context(), cmd)
		if err != nil {
			writeError(w, h.logger, err, "stream_id", string(streamID))
			return
		}

		resp := commandResponse{Rejected: outcome.Rejected}
		for _, reason := range outcome.Reasons {
			resp.Reasons = append(resp.Reasons, anyToString(reason))
		}
		status := http.StatusOK
		switch {
		case outcome.Conflicted:
			status = platformerrors.CodeConflict.HTTPStatus()
		case outcome.Rejected:
			status = platformerrors.CodeRejected.HTTPStatus()
		}
		writeJSON(w, status, resp)
	}
}

type streamResponse[S any] struct {
	Version    int64  `json:"version"`
	Conflicted bool   `json:"conflicted"`
	State      S      `json:"state"`
	Reasons    []string `json:"reasons,omitempty"`
}

// StreamHandler reports the current folded state for an aggregate.
func (h *HandlerSet[S, E, C, R, N]) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			http.Error(w, "stream id is required", http.StatusBadRequest)
			return
		}
		state, err := h.repo.Get(r.Context(), journal.StreamID(id))
		if err != nil {
			writeError(w, h.logger, err, "stream_id", id)
			return
		}
		resp := streamResponse[S]{
			Version:    int64(state.Version()),
			Conflicted: state.IsConflicted(),
			State:      state.State(),
		}
		for _, reason := range state.Errors() {
			resp.Reasons = append(resp.Reasons, anyToString(reason))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type outboxEvent[N any] struct {
	SeqNr        int64  `json:"seq_nr"`
	StreamID     string `json:"stream_id"`
	Notification N      `json:"notification"`
}

// OutboxStreamHandler long-polls the outbox reader and flushes each pending
// item to the client as newline-delimited JSON, acknowledging delivery
// immediately after each write. Clients must tolerate duplicate
// deliveries, same as any outbox consumer.
func (h *HandlerSet[S, E, C, R, N]) OutboxStreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.reader == nil {
			http.Error(w, "outbox streaming is not configured", http.StatusServiceUnavailable)
			return
		}
		flusher, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		items, errs := h.reader.Read(ctx)
		enc := json.NewEncoder(w)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if ok && err != nil && !errors.Is(err, context.DeadlineExceeded) {
					h.logger.Warn("outbox stream error", "error", err)
				}
				return
			case item, ok := <-items:
				if !ok {
					return
				}
				_ = enc.Encode(outboxEvent[N]{
					SeqNr:        int64(item.SeqNr),
					StreamID:     string(item.StreamID),
					Notification: item.Notification,
				})
				if flusher != nil {
					flusher.Flush()
				}
				_ = h.reader.MarkAllAsSent(ctx, []journal.SeqNr{item.SeqNr})
			}
		}
	}
}

// writeError classifies err into a platformerrors.Code and reports it to
// the client as JSON under the matching HTTP status, logging the internal
// message and cause. kv are extra slog key/value pairs describing the
// request (e.g. the stream id) for the log line.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, kv ...any) {
	domainErr, ok := err.(*platformerrors.Error)
	if !ok {
		domainErr = platformerrors.Wrap(classifyCode(err), "request failed", err)
	}

	logger.Error("request failed", append(kv, "error", err, "code", string(domainErr.Code))...)
	writeJSON(w, domainErr.Code.HTTPStatus(), commandResponse{Rejected: true, Reasons: []string{domainErr.Message}})
}

// classifyCode infers a platformerrors.Code for an error that was not
// already wrapped by the command-handling core (e.g. a repository read
// failure), so cancellations are never misreported as transport failures.
func classifyCode(err error) platformerrors.Code {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return platformerrors.CodeCancelled
	}
	return platformerrors.CodeTransport
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func anyToString(v any) string {
	return fmt.Sprintf("%v", v)
}
