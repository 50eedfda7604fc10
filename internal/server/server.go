// Package server exposes gated form submissions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/formspec"
	"github.com/networked-ai/formguard/internal/logger"
	"github.com/networked-ai/formguard/middleware"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr         string
	AllowOrigins []string
	MaxBody      int64
	Gate         *formguard.Gate
	// Build is applied to every form; its Record is ignored.
	Build        formspec.BuildOptions
	Logger       formguard.Logger
}

// Server accepts form submissions at POST /forms/{name}/submit and answers 200
// only when the submission gate passes.
type Server struct {
	http        *http.Server
	log         formguard.Logger
	forms       map[string]http.Handler
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
}

// New wires the routes for forms. Form names must be unique.
func New(forms []*formspec.Form, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		log:      log,
		forms:    map[string]http.Handler{},
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formguard_submissions_total",
			Help: "Form submissions by form and HTTP status.",
		}, []string{"form", "status"}),
	}
	s.registry.MustRegister(s.submissions)

	for _, f := range forms {
		if _, dup := s.forms[f.Name]; dup {
			return nil, fmt.Errorf("server: duplicate form %q", f.Name)
		}
		s.forms[f.Name] = middleware.Submit(
			middleware.FormBuilder(f, opts.Build),
			middleware.Options{Gate: opts.Gate, MaxBody: opts.MaxBody, Logger: log},
			http.HandlerFunc(accepted),
		)
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/healthz", getHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/forms", s.listForms).Methods(http.MethodGet)
	router.HandleFunc("/forms/{name}/submit", s.submit).Methods(http.MethodPost)

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           c.Handler(tracing(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, CORS and tracing included.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server: listening", "addr", s.http.Addr, "forms", len(s.forms))
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(sctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	h, ok := s.forms[name]
	if !ok {
		replyJSON(w, http.StatusNotFound, map[string]string{"error": "unknown form"})
		return
	}
	rw := &statusCodeResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	h.ServeHTTP(rw, r)
	s.submissions.WithLabelValues(name, fmt.Sprint(rw.statusCode)).Inc()
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("form.name", name),
		attribute.Int("http.status_code", rw.statusCode),
	)
}

func (s *Server) listForms(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.forms))
	for n := range s.forms {
		names = append(names, n)
	}
	sort.Strings(names)
	replyJSON(w, http.StatusOK, map[string]any{"forms": names})
}

func accepted(w http.ResponseWriter, r *http.Request) {
	rec, _ := middleware.RecordFromContext(r.Context())
	replyJSON(w, http.StatusOK, map[string]any{"ok": true, "values": rec.Values()})
}

func getHealthz(w http.ResponseWriter, _ *http.Request) {
	replyJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// tracing starts a server span per request, continuing W3C trace context.
func tracing(next http.Handler) http.Handler {
	propagator := propagation.TraceContext{}
	tracer := otel.Tracer("github.com/networked-ai/formguard/internal/server")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "http.request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusCodeResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCodeResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func replyJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
