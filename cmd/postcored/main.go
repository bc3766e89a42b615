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

// Command postcored is the thin composition root wiring the Console and
// Gateway HTTP surfaces over the core's domain packages.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/authn"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/config"
	"github.com/opentrusty/postcore/gatekeeper"
	"github.com/opentrusty/postcore/grant"
	"github.com/opentrusty/postcore/group"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/owner"
	"github.com/opentrusty/postcore/secret"
	"github.com/opentrusty/postcore/signing"
	storeredis "github.com/opentrusty/postcore/store/redis"

	"github.com/opentrusty/postcore/store/postgres"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	infra, err := loadInfraConfig()
	if err != nil {
		return fmt.Errorf("load infra config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         infra.DBHost,
		Port:         infra.DBPort,
		User:         infra.DBUser,
		Password:     infra.DBPassword,
		Database:     infra.DBName,
		SSLMode:      infra.DBSSLMode,
		MaxOpenConns: infra.DBMaxOpenConns,
		MaxIdleConns: infra.DBMaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ownerRepo := postgres.NewOwnerRepository(db)
	keyRepo := postgres.NewKeyRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	refreshRepo := postgres.NewRefreshTokenRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	auditLogger := audit.NewRepositoryLogger(auditRepo)

	refreshLookupKey, err := hex.DecodeString(cfg.RefreshLookupKeyHex)
	if err != nil {
		return fmt.Errorf("decode refresh lookup key: %w", err)
	}
	hashParams := secret.DefaultParams()
	hashParams.MemoryKiB = cfg.PasswordHashMemoryKiB
	hashParams.TimeCost = cfg.PasswordHashTimeCost
	hashParams.Parallelism = cfg.PasswordHashParallelism
	hasher := secret.NewHasher(hashParams, refreshLookupKey)

	clk := clock.New()

	signer := signing.NewService(signing.Config{
		Issuer:          cfg.Issuer,
		ConsoleAudience: cfg.ConsoleAudience,
		GatewayAudience: cfg.GatewayAudience,
		Leeway:          cfg.TokenLeeway(),
	}, clk)

	privateKey, err := cfg.SigningPrivateKey()
	if err != nil {
		return fmt.Errorf("load signing private key: %w", err)
	}
	if _, err := signer.AddSigningKey(privateKey); err != nil {
		return fmt.Errorf("install signing key: %w", err)
	}
	for _, spk := range cfg.SigningPublicKeys {
		pub, err := cfg.ParsedSigningPublicKey(spk)
		if err != nil {
			return fmt.Errorf("parse retired verification key %s: %w", spk.Kid, err)
		}
		if _, err := signer.AddVerificationKey(pub); err != nil {
			return fmt.Errorf("install retired verification key %s: %w", spk.Kid, err)
		}
	}

	ownerSvc := owner.NewService(ownerRepo, hasher, auditLogger, clk)
	keyMgr := keycred.NewManager(keyRepo, keyRepo, hasher, auditLogger, clk)
	groupSvc := group.NewService(groupRepo, auditLogger, clk)
	grantMgr := grant.NewManager(grantRepo, auditLogger, clk)
	authzEvaluator := authz.NewEvaluator(grantRepo, groupRepo)

	var authnOpts []authn.Option
	var replayGuard *storeredis.ReplayGuard
	if infra.RedisAddr != "" {
		replayGuard, err = storeredis.New(ctx, infra.RedisAddr, infra.RedisPassword, infra.RedisDB)
		if err != nil {
			log.Warn("replay guard unavailable, falling back to database-only rotation", "error", err)
		} else {
			defer replayGuard.Close()
			authnOpts = append(authnOpts, authn.WithReplayGuard(replayGuard))
			log.Info("refresh replay guard enabled", "addr", infra.RedisAddr)
		}
	}

	authnSvc := authn.NewService(ownerRepo, keyRepo, refreshRepo, refreshRepo, hasher, signer, auditLogger, clk, authnOpts...)

	gk := gatekeeper.NewService(gatekeeper.Config{
		ConsoleAudience: cfg.ConsoleAudience,
		GatewayAudience: cfg.GatewayAudience,
	}, signer, keyRepo, auditLogger)

	d := &deps{
		log:        log,
		ownerSvc:   ownerSvc,
		keyMgr:     keyMgr,
		keyRepo:    keyRepo,
		groupSvc:   groupSvc,
		groupRepo:  groupRepo,
		grantMgr:   grantMgr,
		grantRepo:  grantRepo,
		authnSvc:   authnSvc,
		authz:      authzEvaluator,
		gatekeeper: gk,
		signer:     signer,
	}

	srv := &http.Server{
		Addr:              infra.HTTPAddr,
		Handler:           newRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("postcored starting", "addr", infra.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
