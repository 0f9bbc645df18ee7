package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aurelien590/StabilityMatrix/internal/engine"
	"github.com/Aurelien590/StabilityMatrix/internal/packages"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Specs() []*types.PackageSpec
	Installed() ([]*types.InstalledPackage, error)
	Running() []engine.RunStatus
	Ready() bool
	Find(specName string) (*types.InstalledPackage, error)
	Launch(ctx context.Context, specName string) (*types.InstalledPackage, error)
	Stop(packageID string) error
	SetOverrides(specName string, overrides []types.ArgOverride) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(corsOptions()))
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/api/specs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"specs": svc.Specs()})
	})

	r.Get("/api/packages", func(w http.ResponseWriter, r *http.Request) {
		installed, err := svc.Installed()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"packages": installed})
	})

	r.Get("/api/processes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"processes": svc.Running()})
	})

	r.Post("/api/packages/{spec}/launch", func(w http.ResponseWriter, r *http.Request) {
		spec := chi.URLParam(r, "spec")
		pkg, err := svc.Launch(r.Context(), spec)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, pkg)
	})

	r.Post("/api/packages/{spec}/stop", func(w http.ResponseWriter, r *http.Request) {
		spec := chi.URLParam(r, "spec")
		pkg, err := svc.Find(spec)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := svc.Stop(pkg.ID); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Put("/api/packages/{spec}/options", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body struct {
			Overrides []types.ArgOverride `json:"overrides"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		spec := chi.URLParam(r, "spec")
		if err := svc.SetOverrides(spec, body.Overrides); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("serving"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("idle"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// writeServiceError maps well-known engine errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case packages.IsSpecNotFound(err), packages.IsNotInstalled(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case engine.IsAlreadyRunning(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		if he, ok := err.(HTTPError); ok {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
