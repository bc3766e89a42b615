// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/gatekeeper"
)

type contextKey int

const (
	ctxKeyRequestID contextKey = iota
	ctxKeyPrincipal
)

// requestIDFrom returns the request id stashed by withRequestID, or "" if
// this context never passed through it (a handler invoked from a test,
// say).
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// principalFrom returns the authz.Principal an authentication middleware
// attached, or nil if none did.
func principalFrom(ctx context.Context) *authz.Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*authz.Principal)
	return p
}

// withRequestID assigns every inbound request an id, honoring an
// X-Request-ID the caller already set so a request can be traced across a
// reverse proxy boundary.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withLogging logs one structured line per request after it completes.
func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRecover turns a panicking handler into a logged internal_error
// response instead of taking the whole server down.
func withRecover(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered", "panic", rec, "request_id", requestIDFrom(r.Context()))
				writeError(r, w, "internal_error", "an internal error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireConsole authenticates the Owner surface and attaches the
// resulting Principal to the request context, or rejects the request.
func requireConsole(gk *gatekeeper.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gk.AuthenticateConsole(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(r, w, "unauthorized", "invalid or missing credentials", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireGateway authenticates the Key surface and attaches the resulting
// Principal to the request context, or rejects the request.
func requireGateway(gk *gatekeeper.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gk.AuthenticateGateway(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(r, w, "unauthorized", "invalid or missing credentials", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// chain applies middlewares in the order given, outermost first.
func chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
