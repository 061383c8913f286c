// Copyright 2026 TreasuryKit
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

// Package api exposes the caller-facing HTTP JSON surface: read-only
// projections of stored entities plus the privileged write operations of
// the lifecycle manager and the chain orchestrator. Privileged routes sit
// behind an access guard that rejects mismatched callers before any state
// is touched.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/position"
	"github.com/treasurykit/stakewarden/proposalchain"
)

// PrincipalHeader carries the caller identity checked by the access guard
const PrincipalHeader = "X-Caller-Principal"

// ApiConfig holds the listener settings and the privileged principal
type ApiConfig struct {
	ListenAddress string
	// Principal is the only caller identity allowed to mutate state
	Principal string
}

// Api is the HTTP JSON server for the service
type Api struct {
	config     ApiConfig
	logger     *slog.Logger
	manager    *position.Manager
	orch       *proposalchain.Orchestrator
	db         *database.Database
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance
func New(
	cfg ApiConfig,
	manager *position.Manager,
	orch *proposalchain.Orchestrator,
	db *database.Database,
	logger *slog.Logger,
) *Api {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":3000"
	}
	return &Api{
		config:  cfg,
		logger:  logger,
		manager: manager,
		orch:    orch,
		db:      db,
	}
}

// Handler builds the route table. Exposed for tests.
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	// Reads
	mux.HandleFunc("GET /v1/positions", a.handleListPositions)
	mux.HandleFunc("GET /v1/positions/{id}", a.handleGetPosition)
	mux.HandleFunc("GET /v1/chains", a.handleListChains)
	mux.HandleFunc("GET /v1/chains/{id}", a.handleGetChain)
	mux.HandleFunc("GET /v1/config", a.handleServiceConfig)
	mux.HandleFunc("GET /v1/logs", a.handleLogs)
	mux.HandleFunc("GET /v1/balance", a.handleBalance)
	// Privileged writes
	mux.HandleFunc("POST /v1/positions", a.guard(a.handleCreatePosition))
	mux.HandleFunc(
		"POST /v1/positions/validate",
		a.guard(a.handleValidateCreate),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/claim",
		a.guard(a.handleClaimOrRefresh),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/topup",
		a.guard(a.handleTopUp),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/configure",
		a.guard(a.handleReconfigure),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/spawn",
		a.guard(a.handleSpawn),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/proposals",
		a.guard(a.handleCreateProposal),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/vote",
		a.guard(a.handleVote),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/disburse",
		a.guard(a.handleDisburse),
	)
	mux.HandleFunc(
		"POST /v1/positions/{id}/following",
		a.guard(a.handleSetFollowing),
	)
	mux.HandleFunc(
		"PUT /v1/positions/{id}/schedule",
		a.guard(a.handleSetSchedule),
	)
	mux.HandleFunc(
		"DELETE /v1/positions/{id}",
		a.guard(a.handleRemovePosition),
	)
	mux.HandleFunc("POST /v1/chains", a.guard(a.handleCreateChain))
	mux.HandleFunc(
		"POST /v1/chains/{id}/start",
		a.guard(a.handleStartChain),
	)
	mux.HandleFunc(
		"POST /v1/chains/{id}/advance",
		a.guard(a.handleAdvanceChain),
	)
	return mux
}

// guard rejects callers whose principal header does not match the
// configured privileged principal, before the wrapped handler runs.
func (a *Api) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(PrincipalHeader)
		if caller == "" || caller != a.config.Principal {
			a.logger.Warn(
				"rejected caller",
				"path", r.URL.Path,
				"caller", caller,
			)
			writeApiError(
				w,
				apierror.Forbidden("caller is not the privileged principal"),
			)
			return
		}
		next(w, r)
	}
}

// Start starts the HTTP server in a background goroutine
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}
	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()
		if srv != nil {
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine.
func (a *Api) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}
