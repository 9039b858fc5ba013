package adminhttp

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	hotconfig "github.com/goliatone/go-hotconfig"
	"github.com/goliatone/go-hotconfig/pkg/state"
	"github.com/goliatone/go-hotconfig/schema/openapi"
)

const maxBodyBytes = 1 << 20

// Option configures a Handler.
type Option func(*Handler)

// WithToken requires "Authorization: Bearer <token>" on every route. An
// empty token disables authentication.
func WithToken(token string) Option {
	return func(h *Handler) {
		h.token = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGenerator overrides the OpenAPI generator served on /api/schema.
func WithGenerator(g *openapi.Generator) Option {
	return func(h *Handler) {
		if g != nil {
			h.generator = g
		}
	}
}

// Handler serves the administrative routes for one Store.
type Handler struct {
	store     *hotconfig.Store
	token     string
	logger    *slog.Logger
	generator *openapi.Generator
	mux       *http.ServeMux
}

// Summary is the payload of GET /api/config.
type Summary struct {
	Path     string             `json:"path"`
	Checksum string             `json:"checksum"`
	Backups  int                `json:"backups"`
	Config   hotconfig.Document `json:"config"`
}

// ChangeResponse wraps an accepted change with handler failures rendered as
// strings.
type ChangeResponse struct {
	*hotconfig.Change
	HandlerErrors []string `json:"handler_errors,omitempty"`
}

// ValidationResponse is the 422 payload.
type ValidationResponse struct {
	Error  string       `json:"error"`
	Fields []fieldIssue `json:"fields"`
}

type fieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

type rollbackRequest struct {
	ID string `json:"id"`
}

// New builds the handler. Routes live under /api.
func New(store *hotconfig.Store, opts ...Option) *Handler {
	h := &Handler{
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
		generator: openapi.New(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	h.mux.HandleFunc("GET /api/config", h.auth(h.handleSummary))
	h.mux.HandleFunc("GET /api/config/{section}", h.auth(h.handleSection))
	h.mux.HandleFunc("PATCH /api/config/{section}", h.auth(h.handleUpdate))
	h.mux.HandleFunc("GET /api/backups", h.auth(h.handleBackups))
	h.mux.HandleFunc("POST /api/rollback", h.auth(h.handleRollback))
	h.mux.HandleFunc("GET /api/schema", h.auth(h.handleSchema))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	if h.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			h.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	backups, err := h.store.Backups(r.Context())
	if err != nil {
		h.log().Warn("list backups failed", slog.String("error", err.Error()))
	}
	h.writeJSON(w, http.StatusOK, Summary{
		Path:     h.store.Path(),
		Checksum: h.store.Checksum(),
		Backups:  len(backups),
		Config:   h.store.Summary(),
	})
}

func (h *Handler) handleSection(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	values, ok := h.store.Summary()[section]
	if !ok {
		h.writeError(w, http.StatusNotFound, "section not found")
		return
	}
	h.writeJSON(w, http.StatusOK, values)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	var partial map[string]any
	if err := decodeBody(r, &partial); err != nil || partial == nil {
		h.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	change, err := h.store.Update(r.Context(), section, partial)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.changeResponse(change))
}

func (h *Handler) handleBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.store.Backups(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if backups == nil {
		backups = []state.Backup{}
	}
	h.writeJSON(w, http.StatusOK, backups)
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = "latest"
	}
	change, err := h.store.Rollback(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.changeResponse(change))
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := h.generator.Generate(h.store.Schema())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) changeResponse(change *hotconfig.Change) ChangeResponse {
	resp := ChangeResponse{Change: change}
	if change == nil {
		return resp
	}
	redacted := *change
	redacted.Fields = h.redactFields(change.Fields)
	resp.Change = &redacted
	for _, err := range change.HandlerErrors {
		resp.HandlerErrors = append(resp.HandlerErrors, err.Error())
	}
	return resp
}

func (h *Handler) redactFields(fields []hotconfig.FieldChange) []hotconfig.FieldChange {
	if len(fields) == 0 {
		return fields
	}
	schema := h.store.Schema()
	out := make([]hotconfig.FieldChange, len(fields))
	for i, f := range fields {
		out[i] = f
		section, rest, _ := strings.Cut(f.Path, ".")
		key, _, _ := strings.Cut(rest, ".")
		if field, ok := schema.Lookup(section, key); ok && field.Secret {
			if out[i].Old != nil {
				out[i].Old = hotconfig.RedactedValue
			}
			if out[i].New != nil {
				out[i].New = hotconfig.RedactedValue
			}
		}
	}
	return out
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	var verr *hotconfig.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := ValidationResponse{Error: err.Error(), Fields: make([]fieldIssue, 0, len(verr.Fields))}
		for _, f := range verr.Fields {
			resp.Fields = append(resp.Fields, fieldIssue{Path: f.Path(), Message: f.Message, Rule: f.Rule})
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, hotconfig.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hotconfig.ErrClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log().Error("configuration write failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) log() *slog.Logger {
	return h.logger.With(slog.String("component", "adminhttp"))
}
