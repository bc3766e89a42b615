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
	"log/slog"
	"net/http"

	"github.com/opentrusty/postcore/authn"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/gatekeeper"
	"github.com/opentrusty/postcore/grant"
	"github.com/opentrusty/postcore/group"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/owner"
	"github.com/opentrusty/postcore/signing"
)

// deps is the composition root's dependency bag, threaded through every
// handler as a method receiver rather than via globals.
type deps struct {
	log *slog.Logger

	ownerSvc *owner.Service

	keyMgr  *keycred.Manager
	keyRepo keycred.Repository

	groupSvc  *group.Service
	groupRepo group.Repository

	grantMgr  *grant.Manager
	grantRepo grant.Repository

	authnSvc   *authn.Service
	authz      *authz.Evaluator
	gatekeeper *gatekeeper.Service
	signer     *signing.Service
}

// newRouter wires every Console, Gateway, and public endpoint behind the
// request-id/logging/recovery middleware chain.
func newRouter(d *deps) http.Handler {
	mux := http.NewServeMux()
	console := requireConsole(d.gatekeeper)
	gw := requireGateway(d.gatekeeper)

	mux.HandleFunc("GET /.well-known/jwks.json", d.handleKeySet)
	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.HandleFunc("POST /v1/owners/register", d.handleOwnerRegister)
	mux.HandleFunc("POST /v1/console/login", d.handleConsoleLogin)
	mux.HandleFunc("POST /v1/gateway/token", d.handleGatewayToken)
	mux.HandleFunc("POST /v1/auth/refresh", d.handleRefresh)

	mux.Handle("POST /v1/console/keys", console(http.HandlerFunc(d.handleConsoleMintKey)))
	mux.Handle("GET /v1/console/keys/{id}", console(http.HandlerFunc(d.handleConsoleGetKey)))
	mux.Handle("POST /v1/console/keys/{id}/rotate", console(http.HandlerFunc(d.handleConsoleRotateKey)))
	mux.Handle("POST /v1/console/keys/{id}/active", console(http.HandlerFunc(d.handleConsoleSetKeyActive)))
	mux.Handle("POST /v1/console/groups", console(http.HandlerFunc(d.handleConsoleCreateGroup)))
	mux.Handle("POST /v1/console/groups/{id}/members", console(http.HandlerFunc(d.handleConsoleAddGroupMember)))
	mux.Handle("DELETE /v1/console/groups/{id}/members/{keyID}", console(http.HandlerFunc(d.handleConsoleRemoveGroupMember)))
	mux.Handle("PUT /v1/console/posts/{postID}/access", console(http.HandlerFunc(d.handleConsoleUpsertGrant)))
	mux.Handle("DELETE /v1/console/posts/{postID}/access", console(http.HandlerFunc(d.handleConsoleRevokeGrant)))

	mux.Handle("POST /v1/gateway/keys", gw(http.HandlerFunc(d.handleGatewayMintChildKey)))
	mux.Handle("POST /v1/gateway/keys/{id}/rotate", gw(http.HandlerFunc(d.handleGatewayRotateKey)))
	mux.Handle("GET /v1/gateway/groups", gw(http.HandlerFunc(d.handleGatewayListGroups)))
	mux.Handle("PUT /v1/gateway/posts/{postID}/access", gw(http.HandlerFunc(d.handleGatewayUpsertGrant)))
	mux.Handle("DELETE /v1/gateway/posts/{postID}/access", gw(http.HandlerFunc(d.handleGatewayRevokeGrant)))

	// chain's first argument becomes the outermost middleware, so
	// withRequestID must run before withLogging can read the id it sets.
	return chain(mux, withRequestID,
		func(h http.Handler) http.Handler { return withLogging(d.log, h) },
		func(h http.Handler) http.Handler { return withRecover(d.log, h) })
}
