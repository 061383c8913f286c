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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/position"
	"github.com/treasurykit/stakewarden/proposalchain"
)

const apiVersion = "0.1.0"

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeApiError maps the typed error kinds onto HTTP statuses: validation
// 400, forbidden 403, not found 404, external service 502, anything else
// 500.
func writeApiError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	label := "Internal Server Error"
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind() {
		case apierror.KindValidation:
			status = http.StatusBadRequest
			label = "Bad Request"
		case apierror.KindForbidden:
			status = http.StatusForbidden
			label = "Forbidden"
		case apierror.KindNotFound:
			status = http.StatusNotFound
			label = "Not Found"
		case apierror.KindExternalService:
			status = http.StatusBadGateway
			label = "Bad Gateway"
		}
	}
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      label,
		Message:    err.Error(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeApiError(
			w,
			apierror.Validation("invalid request body: %s", err),
		)
		return false
	}
	return true
}

// pathID parses the {id} path segment as a storage key
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeApiError(w, apierror.Validation("invalid id %q", raw))
		return 0, false
	}
	return uint(id), true
}

func lookupByID(id uint) position.Lookup {
	return position.Lookup{StorageID: &id}
}

type rootResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

func (a *Api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Service: "stakewarden",
		Version: apiVersion,
	})
}

type healthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{IsHealthy: true})
}

func (a *Api) handleListPositions(w http.ResponseWriter, _ *http.Request) {
	refs, err := a.manager.List()
	if err != nil {
		a.logger.Error("failed to list positions", "error", err)
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (a *Api) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	full, err := a.manager.GetFull(r.Context(), lookupByID(id))
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (a *Api) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req position.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := a.manager.Create(r.Context(), req)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func (a *Api) handleValidateCreate(w http.ResponseWriter, r *http.Request) {
	var req position.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.manager.ValidateCreate(r.Context(), req); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

type claimResponse struct {
	ExternalID uint64 `json:"external_id"`
}

func (a *Api) handleClaimOrRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	externalID, err := a.manager.ClaimOrRefresh(r.Context(), lookupByID(id))
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{ExternalID: externalID})
}

type topUpRequest struct {
	Amount uint64 `json:"amount"`
}

type transferResponse struct {
	BlockHeight uint64 `json:"block_height"`
}

func (a *Api) handleTopUp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req topUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	blockHeight, err := a.manager.TopUp(
		r.Context(),
		lookupByID(id),
		req.Amount,
	)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{BlockHeight: blockHeight})
}

func (a *Api) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var args governance.ConfigureArgs
	if !decodeBody(w, r, &args) {
		return
	}
	if err := a.manager.Reconfigure(
		r.Context(),
		lookupByID(id),
		args,
	); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *Api) handleSpawn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req position.SpawnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := a.manager.Spawn(r.Context(), lookupByID(id), req)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type createProposalRequest struct {
	Spec json.RawMessage `json:"spec"`
}

type createProposalResponse struct {
	ProposalID uint64 `json:"proposal_id"`
}

func (a *Api) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createProposalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	proposalID, err := a.manager.CreateProposal(
		r.Context(),
		lookupByID(id),
		req.Spec,
	)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createProposalResponse{
		ProposalID: proposalID,
	})
}

type voteRequest struct {
	ProposalID uint64                `json:"proposal_id"`
	Choice     governance.VoteChoice `json:"choice"`
}

func (a *Api) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.manager.Vote(
		r.Context(),
		lookupByID(id),
		req.ProposalID,
		req.Choice,
	); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *Api) handleDisburse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	blockHeight, err := a.manager.Disburse(r.Context(), lookupByID(id))
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{BlockHeight: blockHeight})
}

type setFollowingRequest struct {
	Entries []position.FollowEntry `json:"entries"`
}

func (a *Api) handleSetFollowing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setFollowingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.manager.SetFollowing(
		r.Context(),
		lookupByID(id),
		req.Entries,
	); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *Api) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req position.ScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.manager.SetMaturitySchedule(
		r.Context(),
		lookupByID(id),
		req,
	); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *Api) handleRemovePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.manager.Remove(r.Context(), lookupByID(id)); err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *Api) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req proposalchain.CreateChainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := a.orch.CreateChain(r.Context(), req)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Api) handleStartChain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := a.orch.StartChain(r.Context(), id)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Api) handleAdvanceChain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := a.orch.AdvanceChain(r.Context(), id)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Api) handleListChains(w http.ResponseWriter, _ *http.Request) {
	chains, err := a.orch.ListChains()
	if err != nil {
		a.logger.Error("failed to list chains", "error", err)
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chains)
}

func (a *Api) handleGetChain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := a.orch.GetChain(id)
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type serviceConfigResponse struct {
	GovernanceServiceID string `json:"governance_service_id"`
	LedgerServiceID     string `json:"ledger_service_id"`
}

func (a *Api) handleServiceConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := a.db.ServiceConfig()
	if err != nil {
		if errors.Is(err, models.ErrServiceConfigNotSet) {
			writeApiError(
				w,
				apierror.NotFound("service config not set"),
			)
			return
		}
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceConfigResponse{
		GovernanceServiceID: cfg.GovernanceServiceID,
		LedgerServiceID:     cfg.LedgerServiceID,
	})
}

func (a *Api) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeApiError(
				w,
				apierror.Validation("invalid limit %q", raw),
			)
			return
		}
		limit = parsed
	}
	entries, err := a.db.Logs(limit)
	if err != nil {
		writeApiError(w, err)
		return
	}
	if entries == nil {
		entries = []database.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

func (a *Api) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.manager.ServiceBalance(r.Context())
	if err != nil {
		writeApiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}
