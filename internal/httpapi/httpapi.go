/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httpapi implements the REST-style wire surface of spec §6 on
// top of gorilla/mux: POST /recommendations, POST /jobs/{id}/assign,
// GET /recommendations/latest, and POST /recommendations/recalculate.
// Handlers translate between JSON and the domain/coordinator/assignment
// types and map the errs taxonomy onto HTTP status codes at the edge —
// nothing below this package knows about HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartscheduler/core/internal/assignment"
	"github.com/smartscheduler/core/internal/config"
	"github.com/smartscheduler/core/internal/coordinator"
	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/errs"
	"github.com/smartscheduler/core/internal/logging"
	"github.com/smartscheduler/core/internal/repo"
)

// API wires the coordinator and assignment transaction into an
// http.Handler.
type API struct {
	Coordinator *coordinator.Coordinator
	Assignment  *assignment.Transaction
	Audits      repo.Audits
	Settings    config.Settings
}

// NewRouter builds the mux.Router serving every endpoint of spec §6.
func (a *API) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.contextMiddleware)
	r.HandleFunc("/recommendations", a.postRecommendations).Methods(http.MethodPost)
	r.HandleFunc("/recommendations/latest", a.getRecommendationsLatest).Methods(http.MethodGet)
	r.HandleFunc("/recommendations/recalculate", a.postRecommendationsRecalculate).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/assign", a.postJobAssign).Methods(http.MethodPost)
	return r
}

// contextMiddleware attaches Settings, and the logger already on the
// request context (a no-op logger if none), to every inbound request's
// context, mirroring the teacher's pattern of
// carrying cross-cutting state on context.Context rather than through
// handler parameters.
func (a *API) contextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := config.ToContext(r.Context(), a.Settings)
		ctx = logging.IntoContext(ctx, logging.FromContext(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type recommendationsRequest struct {
	JobID      string `json:"jobId"`
	MaxResults int    `json:"maxResults"`
}

type suggestedSlotDTO struct {
	StartUtc   time.Time `json:"startUtc"`
	EndUtc     time.Time `json:"endUtc"`
	Type       string    `json:"type"`
	Confidence int       `json:"confidence"`
}

type rankedCandidateDTO struct {
	ContractorID   string                `json:"contractorId"`
	ContractorName string                `json:"contractorName"`
	Score          int                   `json:"score"`
	ScoreBreakdown domain.ScoreBreakdown `json:"scoreBreakdown"`
	Rationale      string                `json:"rationale"`
	SuggestedSlots []suggestedSlotDTO    `json:"suggestedSlots"`
	Distance       float64               `json:"distance"`
	ETA            float64               `json:"eta"`
}

type recommendationsResponse struct {
	RequestID       string               `json:"requestId"`
	JobID           string               `json:"jobId"`
	Recommendations []rankedCandidateDTO `json:"recommendations"`
	ConfigVersion   int                  `json:"configVersion"`
	GeneratedAt     time.Time            `json:"generatedAt"`
	Degraded        bool                 `json:"degraded"`
}

func toResponse(res coordinator.Result) recommendationsResponse {
	out := recommendationsResponse{
		RequestID:     res.RequestID,
		JobID:         res.JobID,
		ConfigVersion: res.ConfigVersion,
		GeneratedAt:   res.GeneratedAt,
		Degraded:      res.Degraded,
	}
	for _, r := range res.Ranked {
		slots := make([]suggestedSlotDTO, 0, len(r.SuggestedSlots))
		for _, s := range r.SuggestedSlots {
			slots = append(slots, suggestedSlotDTO{
				StartUtc: s.Start, EndUtc: s.End, Type: string(s.Type), Confidence: s.Confidence,
			})
		}
		out.Recommendations = append(out.Recommendations, rankedCandidateDTO{
			ContractorID: r.ContractorID, ContractorName: r.ContractorName,
			Score: r.Score, ScoreBreakdown: r.Breakdown, Rationale: r.Rationale,
			SuggestedSlots: slots, Distance: r.DistanceM, ETA: r.ETAMin,
		})
	}
	return out
}

func (a *API) postRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidRequest, "malformed request body"))
		return
	}

	res, err := a.Coordinator.Recommend(r.Context(), domain.RecommendRequest{
		JobID: req.JobID, MaxResults: req.MaxResults,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// postRecommendationsRecalculate enqueues a fresh recommendation run and
// replies 202 Accepted without waiting for the pipeline to finish (spec
// §6: "enqueues a fresh recommendation run; responds 202").
func (a *API) postRecommendationsRecalculate(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidRequest, "malformed request body"))
		return
	}
	if req.JobID == "" {
		writeError(w, errs.New(errs.InvalidRequest, "jobId is required"))
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx)
	go func() {
		bg := config.ToContext(logging.IntoContext(
			context.Background(), log), a.Settings)
		if _, err := a.Coordinator.Recommend(bg, domain.RecommendRequest{JobID: req.JobID}); err != nil {
			log.Error(err, "background recalculation failed", "jobId", req.JobID)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) getRecommendationsLatest(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, errs.New(errs.InvalidRequest, "jobId query parameter is required"))
		return
	}
	audit, err := a.Audits.LatestForJob(r.Context(), jobID)
	if err != nil {
		writeError(w, errs.Wrap(errs.NotFound, err))
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

type assignRequestDTO struct {
	ContractorID string    `json:"contractorId"`
	StartUtc     time.Time `json:"startUtc"`
	EndUtc       time.Time `json:"endUtc"`
	Actor        string    `json:"actor"`
}

func (a *API) postJobAssign(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	var req assignRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidRequest, "malformed request body"))
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "dispatcher"
	}

	a1, err := a.Assignment.Assign(r.Context(), domain.AssignRequest{
		JobID: jobID, ContractorID: req.ContractorID,
		StartUtc: req.StartUtc, EndUtc: req.EndUtc, Actor: actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// writeError maps the errs taxonomy onto HTTP status codes (spec §6:
// "409 Conflict with taxonomy code"; other codes map analogously). Data
// unavailability inside the recommendation pipeline never surfaces here
// as an error — the coordinator degrades gracefully instead.
func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.InvalidRequest:
		status = http.StatusBadRequest
	case errs.Conflict:
		status = http.StatusConflict
	case errs.Degraded, errs.Transient:
		status = http.StatusServiceUnavailable
	case errs.Fatal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Code: string(code), Reason: errs.ReasonOf(err)})
}
