// Package api provides HTTP handlers for the resolver API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/gorilla/mux"

	"embed-resolver-go/pkg/appctx"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/services"
	"embed-resolver-go/pkg/types"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/resolve", h.handleResolve).Methods(http.MethodGet)
	r.HandleFunc("/page", h.handlePage).Methods(http.MethodGet)
}

type streamsResponse struct {
	Streams []types.ResolvedStream `json:"streams"`
}

func (h *Handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":      "embed-resolver",
		"version":   h.ctx.Version,
		"endpoints": []string{"/resolve", "/page", "/health", "/metrics"},
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResolve runs one embed: /resolve?url=<embed>&referer=&label=&h_<Header>=
func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	ref, err := parseResolveRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.requestLog(r).With("embed", ref.URL)
	log.Debug("resolve request")

	streams, err := h.ctx.Resolver.Resolve(r.Context(), ref)
	if err != nil {
		log.Error("resolve failed", "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if streams == nil {
		streams = []types.ResolvedStream{}
	}
	h.writeJSON(w, http.StatusOK, streamsResponse{Streams: streams})
}

// handlePage resolves a content page: /page?url=<page>&title=&season=&episode=
func (h *Handlers) handlePage(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.requestLog(r).With("page", q.URL)
	log.Debug("page request", "title", q.Title, "season", q.Season, "episode", q.Episode)

	res, err := h.ctx.Resolver.ResolvePage(r.Context(), q)
	switch {
	case errors.Is(err, services.ErrNoTitleMatch):
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		log.Error("page resolve failed", "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if res.Streams == nil {
		res.Streams = []types.ResolvedStream{}
	}
	if res.Embeds == nil {
		res.Embeds = []types.EmbedReference{}
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Helper methods

// requestLog prefers the request-scoped logger installed by the logging middleware.
func (h *Handlers) requestLog(r *http.Request) *logging.Logger {
	if l, ok := logging.Lookup(r.Context()); ok {
		return l.WithComponent("api")
	}
	return h.log
}

func requestURL(r *http.Request) (string, error) {
	q := r.URL.Query()
	urlStr := q.Get("url")
	if urlStr == "" {
		urlStr = q.Get("d")
	}
	if urlStr == "" {
		return "", errors.New("url parameter required")
	}
	urlStr = services.DecodeURL(urlStr)
	if !govalidator.IsRequestURL(urlStr) {
		return "", fmt.Errorf("url parameter %q is not a valid url", urlStr)
	}
	return urlStr, nil
}

func parseResolveRequest(r *http.Request) (types.EmbedReference, error) {
	urlStr, err := requestURL(r)
	if err != nil {
		return types.EmbedReference{}, err
	}

	q := r.URL.Query()
	headers := httpclient.ParseHeaderParams(q)
	referer := q.Get("referer")
	for k, v := range headers {
		if strings.EqualFold(k, "Referer") {
			if referer == "" {
				referer = v
			}
			delete(headers, k)
		}
	}

	return types.EmbedReference{
		URL:     urlStr,
		Label:   q.Get("label"),
		Referer: referer,
		Headers: headers,
	}, nil
}

func parsePageRequest(r *http.Request) (services.PageQuery, error) {
	urlStr, err := requestURL(r)
	if err != nil {
		return services.PageQuery{}, err
	}

	q := r.URL.Query()
	season, err := nonNegative(q.Get("season"), "season")
	if err != nil {
		return services.PageQuery{}, err
	}
	episode, err := nonNegative(q.Get("episode"), "episode")
	if err != nil {
		return services.PageQuery{}, err
	}

	return services.PageQuery{
		URL:     urlStr,
		Headers: httpclient.ParseHeaderParams(q),
		Title:   strings.TrimSpace(q.Get("title")),
		Season:  season,
		Episode: episode,
	}, nil
}

func nonNegative(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := govalidator.ToInt(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s parameter %q is not a non-negative integer", name, s)
	}
	return int(n), nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("write response failed", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
