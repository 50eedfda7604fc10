// Package middleware gates HTTP form submissions with formguard.
package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/formspec"
	"github.com/networked-ai/formguard/internal/jsonbody"
	"github.com/networked-ai/formguard/internal/logger"
)

// DefaultMaxBody caps the submission body size.
const DefaultMaxBody int64 = 1 << 20

// ctxKeyRecord is a typed context key for the gated record.
type ctxKeyRecord struct{}

// ContextWithRecord attaches a record to the context.
func ContextWithRecord(ctx context.Context, rec *formguard.Record) context.Context {
	return context.WithValue(ctx, ctxKeyRecord{}, rec)
}

// RecordFromContext retrieves the record a Submit handler gated.
func RecordFromContext(ctx context.Context) (*formguard.Record, bool) {
	rec, ok := ctx.Value(ctxKeyRecord{}).(*formguard.Record)
	return rec, ok
}

// Builder returns a fresh record with its fields registered, and the names
// the gate must check for this request.
type Builder func(r *http.Request) (*formguard.Record, []string, error)

// FormBuilder builds records from a form definition. Availability rules
// declared with checkOnSubmit are armed, since every request is a submit.
func FormBuilder(form *formspec.Form, opts formspec.BuildOptions) Builder {
	return func(r *http.Request) (*formguard.Record, []string, error) {
		o := opts
		o.Record = formguard.NewRecord(formguard.WithContext(r.Context()))
		built, err := form.Build(o)
		if err != nil {
			o.Record.Close()
			return nil, nil, err
		}
		built.Trigger.Arm()
		return built.Record, built.Names, nil
	}
}

// Options configures Submit.
type Options struct {
	Gate    *formguard.Gate
	MaxBody int64
	Logger  formguard.Logger
}

// IssuePayload is the JSON shape of one issue.
type IssuePayload struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorPayload shapes Issues for JSON responses.
func ErrorPayload(issues formguard.Issues) map[string]any {
	out := make([]IssuePayload, 0, len(issues))
	for _, it := range issues {
		out = append(out, IssuePayload{Path: it.Path, Code: it.Code, Message: it.Message})
	}
	return map[string]any{"issues": out}
}

// Submit decodes a JSON object body (duplicate keys are rejected) into a record built per request, runs the
// submission gate and calls next only when it passes. Rejected submissions get
// 422 with the record's issues; malformed bodies get 400.
func Submit(build Builder, opts Options, next http.Handler) http.Handler {
	gate := opts.Gate
	if gate == nil {
		gate = formguard.NewGate()
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var values map[string]any
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err == nil {
			values, err = jsonbody.DecodeObject(data)
		}
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			msg := "invalid request body"
			var dup *jsonbody.DuplicateKeyError
			if errors.As(err, &dup) {
				msg = dup.Error()
			}
			writeJSON(w, status, map[string]any{"error": msg})
			return
		}

		rec, names, err := build(r)
		if err != nil {
			log.Errorw("middleware: build record", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "form unavailable"})
			return
		}
		defer rec.Close()

		rec.Patch(values)
		if !gate.ValidateFields(r.Context(), rec, names...) {
			iss, _ := formguard.AsIssues(rec.Err())
			writeJSON(w, http.StatusUnprocessableEntity, ErrorPayload(iss))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithRecord(r.Context(), rec)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
