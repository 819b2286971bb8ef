package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/okian/riskgate/internal/domain/experts"
	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/pkg/logger"
)

const maxBodyBytes = 4 << 20

// expertScoreRequest is one expert verdict in a request body.
type expertScoreRequest struct {
	Score      *float64   `json:"score"`
	Confidence *float64   `json:"confidence,omitempty"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
}

// assessmentRequest mirrors the OpenAPI schema for POST /v1/assessments.
type assessmentRequest struct {
	DriverID    string                        `json:"driver_id"`
	TripID      string                        `json:"trip_id"`
	BasePremium float64                       `json:"base_premium,omitempty"`
	Scores      map[string]expertScoreRequest `json:"scores"`
}

func (a *assessmentRequest) validate() error {
	switch {
	case strings.TrimSpace(a.DriverID) == "":
		return errors.New("missing driver_id")
	case strings.TrimSpace(a.TripID) == "":
		return errors.New("missing trip_id")
	case a.BasePremium < 0 || math.IsNaN(a.BasePremium) || math.IsInf(a.BasePremium, 0):
		return errors.New("base_premium must be a non-negative number")
	}
	for id, s := range a.Scores {
		if s.Score == nil {
			return fmt.Errorf("scores.%s: missing score", id)
		}
	}
	return nil
}

// input converts the request. Scores without computed_at are stamped with
// now.
func (a *assessmentRequest) input(now time.Time) model.EnsembleInput {
	in := model.EnsembleInput{
		DriverID:    a.DriverID,
		TripID:      a.TripID,
		BasePremium: a.BasePremium,
		Scores:      make(map[model.ExpertID]model.ExpertScore, len(a.Scores)),
	}
	for id, s := range a.Scores {
		at := now
		if s.ComputedAt != nil {
			at = s.ComputedAt.UTC()
		}
		in.Scores[model.ExpertID(id)] = model.ExpertScore{
			ExpertID:   model.ExpertID(id),
			Score:      *s.Score,
			Confidence: s.Confidence,
			ComputedAt: at,
		}
	}
	return in
}

type batchRequest struct {
	Items []assessmentRequest `json:"items"`
}

type batchItemResponse struct {
	Result *model.EnsembleResult `json:"result,omitempty"`
	Error  *errorResponse        `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItemResponse `json:"results"`
}

// tripRequest mirrors the OpenAPI schema for POST /v1/trips.
type tripRequest struct {
	DriverID    string             `json:"driver_id"`
	TripID      string             `json:"trip_id"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	BasePremium float64            `json:"base_premium,omitempty"`
	Signals     map[string]float64 `json:"signals"`
}

// AssessmentHandler handles assessment requests.
type AssessmentHandler struct {
	deps     Dependencies
	maxBatch int
	log      logger.Logger
	now      func() time.Time
}

// NewAssessmentHandler creates a new assessment handler.
func NewAssessmentHandler(deps Dependencies, maxBatch int, log logger.Logger) *AssessmentHandler {
	return &AssessmentHandler{deps: deps, maxBatch: maxBatch, log: log, now: time.Now}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HandleAssess handles POST /v1/assessments requests.
func (h *AssessmentHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	const op = "api.assess"
	var req assessmentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Assess(r.Context(), req.input(h.now().UTC()))
	if err != nil {
		h.log.Info(r.Context(), "assessment failed",
			logger.String("driver_id", req.DriverID),
			logger.String("trip_id", req.TripID),
			logger.Error(err))
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleBatch handles POST /v1/assessments/batch requests. Invalid items
// fail individually; the batch itself succeeds.
func (h *AssessmentHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.assess_batch"
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	switch {
	case len(req.Items) == 0:
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("items must not be empty")))
		return
	case len(req.Items) > h.maxBatch:
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("at most %d items per batch", h.maxBatch)))
		return
	}

	now := h.now().UTC()
	resp := batchResponse{Results: make([]batchItemResponse, len(req.Items))}

	// Only valid items are sent; index maps them back into place.
	var inputs []model.EnsembleInput
	var index []int
	for i := range req.Items {
		if err := req.Items[i].validate(); err != nil {
			resp.Results[i] = itemError(WrapKind(op, ErrBadRequest, fmt.Errorf("items[%d]: %w", i, err)))
			continue
		}
		inputs = append(inputs, req.Items[i].input(now))
		index = append(index, i)
	}

	if len(inputs) > 0 {
		items, err := h.deps.AssessBatch(r.Context(), inputs)
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		for j, item := range items {
			if item.Err != nil {
				resp.Results[index[j]] = itemError(Wrap(op, item.Err))
				continue
			}
			resp.Results[index[j]] = batchItemResponse{Result: item.Result}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func itemError(err error) batchItemResponse {
	_, code := statusFor(err)
	return batchItemResponse{Error: &errorResponse{Code: code, Message: err.Error()}}
}

// HandleTrip handles POST /v1/trips requests: the configured experts score
// the trip signals and the answers are gated.
func (h *AssessmentHandler) HandleTrip(w http.ResponseWriter, r *http.Request) {
	const op = "api.assess_trip"
	var req tripRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.DriverID) == "" || strings.TrimSpace(req.TripID) == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("driver_id and trip_id are required")))
		return
	}

	trip := experts.Trip{
		DriverID:  req.DriverID,
		TripID:    req.TripID,
		StartedAt: h.now().UTC(),
		Signals:   req.Signals,
	}
	if req.StartedAt != nil {
		trip.StartedAt = req.StartedAt.UTC()
	}

	res, err := h.deps.AssessTrip(r.Context(), trip, req.BasePremium)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
