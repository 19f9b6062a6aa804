// Package filehttp mounts a sitefs.Gateway on a chi router:
//
//	GET    {prefix}/{site}/[dir/]   list a directory (trailing slash or empty rest)
//	GET    {prefix}/{site}/file     stream a file (HEAD too)
//	PUT    {prefix}/{site}/file     store the request body
//	DELETE {prefix}/{site}/path     delete a file or directory tree
//
// Failures are rendered as {"message": reason} with the status of the
// error's kind.
package filehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/sitefs"
)

const DefaultPrefix = "/api/file"

type Options struct {
	Gateway *sitefs.Gateway
	Logger  log.Logger

	// Prefix the routes are mounted under. Defaults to DefaultPrefix.
	Prefix string

	// MaxUploadBytes caps PUT bodies. Zero means unbounded.
	MaxUploadBytes int64
}

// API serves the file routes.
type API struct {
	gw        *sitefs.Gateway
	logger    log.Logger
	prefix    string
	maxUpload int64
}

func New(opts Options) (*API, error) {
	if opts.Gateway == nil {
		return nil, errors.New("filehttp: gateway is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	prefix := strings.TrimRight(opts.Prefix, "/")
	if opts.Prefix == "" {
		prefix = DefaultPrefix
	}
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("filehttp: prefix %q must start with '/'", opts.Prefix)
	}
	if opts.MaxUploadBytes < 0 {
		return nil, fmt.Errorf("filehttp: negative MaxUploadBytes %d", opts.MaxUploadBytes)
	}
	return &API{
		gw:        opts.Gateway,
		logger:    opts.Logger,
		prefix:    prefix,
		maxUpload: opts.MaxUploadBytes,
	}, nil
}

// RegisterRoutes attaches the file endpoints to r.
func (api *API) RegisterRoutes(r chi.Router) {
	mount := func(r chi.Router) {
		r.HandleFunc("/", api.handleMissingSite)

		r.Get("/{site}", api.HandleGet)
		r.Head("/{site}", api.HandleGet)
		r.Put("/{site}", api.HandlePut)
		r.Delete("/{site}", api.HandleDelete)

		r.Get("/{site}/*", api.HandleGet)
		r.Head("/{site}/*", api.HandleGet)
		r.Put("/{site}/*", api.HandlePut)
		r.Delete("/{site}/*", api.HandleDelete)
	}
	if api.prefix == "" {
		mount(r)
		return
	}
	r.Route(api.prefix, mount)
}

type listResponse struct {
	Success  bool           `json:"success"`
	Children []sitefs.Entry `json:"children"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// HandleGet lists when the rest of the path is empty or ends in '/', and
// streams the file otherwise.
func (api *API) HandleGet(w http.ResponseWriter, r *http.Request) {
	site, rest, ok := api.params(w, r)
	if !ok {
		return
	}
	if rest == "" || strings.HasSuffix(rest, "/") {
		api.list(w, r, site, rest)
		return
	}
	api.read(w, r, site, rest)
}

func (api *API) list(w http.ResponseWriter, r *http.Request, site, rest string) {
	ctx := r.Context()
	entries, err := api.gw.List(ctx, site, rest)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, listResponse{Success: true, Children: entries})
}

func (api *API) read(w http.ResponseWriter, r *http.Request, site, rest string) {
	ctx := r.Context()
	f, err := api.gw.Open(ctx, site, rest)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// ServeContent handles Content-Type, Content-Length, ranges and
	// conditional requests, and skips the body for HEAD.
	http.ServeContent(w, r, path.Base(f.Target.Rel), f.Status.ModTime, f.File)
}

// HandlePut stores the request body. The response is written only after the
// file is flushed and closed.
func (api *API) HandlePut(w http.ResponseWriter, r *http.Request) {
	site, rest, ok := api.params(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	body := r.Body
	if api.maxUpload > 0 {
		if r.ContentLength > api.maxUpload {
			api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Message: api.tooLarge()})
			return
		}
		body = http.MaxBytesReader(w, r.Body, api.maxUpload)
	}

	n, err := api.gw.Write(ctx, site, rest, body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Message: api.tooLarge()})
			return
		}
		api.writeError(ctx, w, err)
		return
	}
	log.FromContextOr(ctx, api.logger).Debug(ctx, "stored file", "site", site, "path", rest, "bytes", n)
	api.writeJSON(ctx, w, http.StatusOK, okResponse{Success: true})
}

func (api *API) HandleDelete(w http.ResponseWriter, r *http.Request) {
	site, rest, ok := api.params(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := api.gw.Delete(ctx, site, rest); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	log.FromContextOr(ctx, api.logger).Debug(ctx, "deleted path", "site", site, "path", rest)
	api.writeJSON(ctx, w, http.StatusOK, okResponse{Success: true})
}

func (api *API) handleMissingSite(w http.ResponseWriter, r *http.Request) {
	_, err := api.gw.Registry().Lookup("")
	api.writeError(r.Context(), w, err)
}

func (api *API) tooLarge() string {
	return fmt.Sprintf("upload exceeds %d bytes", api.maxUpload)
}

// params extracts the site and rest-of-path. chi matches on RawPath when it
// is set, so captured values are still escaped in that case.
func (api *API) params(w http.ResponseWriter, r *http.Request) (site, rest string, ok bool) {
	site = chi.URLParam(r, "site")
	rest = chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return site, rest, true
	}
	var err error
	if site, err = url.PathUnescape(site); err != nil {
		api.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Message: "malformed path"})
		return "", "", false
	}
	if rest, err = url.PathUnescape(rest); err != nil {
		api.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Message: "malformed path"})
		return "", "", false
	}
	return site, rest, true
}

// writeError renders err with its kind's status. Internal failures were
// already logged with detail where they happened.
func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := sitefs.StatusCode(err)
	if status == http.StatusInternalServerError {
		var se *sitefs.Error
		if !errors.As(err, &se) {
			log.FromContextOr(ctx, api.logger).Error(ctx, err, "unclassified file operation failure")
		}
	}
	api.writeJSON(ctx, w, status, errorResponse{Message: sitefs.Reason(err)})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContextOr(ctx, api.logger).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
