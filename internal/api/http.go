// Package api exposes the triage platform over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/case/manager"
	"github.com/carebridge/platform/internal/engine"
	"github.com/carebridge/platform/internal/followup"
	"github.com/carebridge/platform/internal/shared/auth"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the triage platform.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates the API handler over the engine facade.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// Routes registers the API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/complaints", h.SubmitComplaint)

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", h.ListCases)
		r.Post("/", h.CreateCase)

		r.Route("/{caseID}", func(r chi.Router) {
			r.Get("/", h.GetCase)
			r.Post("/transitions", h.TransitionCase)
			r.Post("/notes", h.AddNote)
		})
	})

	r.Post("/followups/responses", h.SubmitFollowupResponse)
	r.Get("/stats", h.GetStatistics)
	r.Get("/staff/eligible", h.EligibleStaff)

	return r
}

// --- Request types ---

type SubmitComplaintRequest struct {
	SubjectID types.ID `json:"subject_id"`
	Complaint string   `json:"complaint"`
}

type CreateCaseRequest struct {
	SubjectID types.ID `json:"subject_id"`
	Severity  int      `json:"severity"`
	Urgency   string   `json:"urgency"`
	Notes     string   `json:"notes,omitempty"`
	MRN       string   `json:"mrn,omitempty"`
}

type TransitionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note,omitempty"`
}

type AddNoteRequest struct {
	Content          string `json:"content"`
	VisibleToPatient bool   `json:"visible_to_patient"`
}

// --- Handlers ---

func (h *Handler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	var req SubmitComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	// Patients submit for themselves regardless of the request body.
	if actor := auth.GetActor(r.Context()); actor != nil && actor.Role == auth.RolePatient {
		req.SubjectID = actor.ID
	}

	assessment, c, err := h.engine.SubmitComplaint(r.Context(), req.SubjectID, req.Complaint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"assessment": assessment,
		"case":       c,
	})
}

func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	actor := auth.GetActor(r.Context())
	source := domain.ManualSource{Severity: req.Severity, Urgency: req.Urgency, Notes: req.Notes}
	if req.MRN != "" {
		mrn, err := types.ParseMRN(req.MRN)
		if err != nil {
			writeError(w, apperrors.Validation("invalid medical record number", map[string]string{"mrn": err.Error()}))
			return
		}
		source.MRN = mrn
	}
	c, err := h.engine.CreateCase(r.Context(), req.SubjectID, req.Severity, source, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid case ID"))
		return
	}

	c, err := h.engine.GetCase(r.Context(), id, auth.GetActor(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		Status:   domain.Status(r.URL.Query().Get("status")),
		Priority: domain.Priority(r.URL.Query().Get("priority")),
	}
	if s := r.URL.Query().Get("subject_id"); s != "" {
		id, err := types.ParseID(s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid subject ID"))
			return
		}
		filter.SubjectID = id
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	// Patients only ever see their own cases, without staff-only notes.
	actor := auth.GetActor(r.Context())
	patient := actor != nil && actor.Role == auth.RolePatient
	if patient {
		filter.SubjectID = actor.ID
	}

	cases, err := h.engine.ListCases(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if patient {
		for i, c := range cases {
			cases[i] = c.PatientView()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cases,
		"total": len(cases),
	})
}

func (h *Handler) TransitionCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid case ID"))
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if !knownActions[req.Action] {
		writeError(w, apperrors.BadRequest("unknown transition action: "+req.Action))
		return
	}

	c, err := h.engine.TransitionCase(r.Context(), id, req.Action, req.Note, auth.GetActor(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid case ID"))
		return
	}

	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c, err := h.engine.AddNote(r.Context(), id, req.Content, req.VisibleToPatient, auth.GetActor(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) SubmitFollowupResponse(w http.ResponseWriter, r *http.Request) {
	var resp followup.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	if actor := auth.GetActor(r.Context()); actor != nil && actor.Role == auth.RolePatient {
		resp.SubjectID = actor.ID
	}

	f, assessment, err := h.engine.SubmitFollowupResponse(r.Context(), &resp)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"followup":   f,
		"assessment": assessment,
	})
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	var subjectID types.ID
	if s := r.URL.Query().Get("subject_id"); s != "" {
		id, err := types.ParseID(s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid subject ID"))
			return
		}
		subjectID = id
	}
	if actor := auth.GetActor(r.Context()); actor != nil && actor.Role == auth.RolePatient {
		subjectID = actor.ID
	}

	snapshot, err := h.engine.GetStatistics(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) EligibleStaff(w http.ResponseWriter, r *http.Request) {
	severity, err := strconv.Atoi(r.URL.Query().Get("severity"))
	if err != nil || severity < 1 || severity > 5 {
		writeError(w, apperrors.BadRequest("severity must be between 1 and 5"))
		return
	}

	members, err := h.engine.EligibleStaff(r.Context(), severity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  members,
		"total": len(members),
	})
}

// --- Helpers ---

// knownActions guards transition requests before they reach the manager
// so typos surface as 400 rather than 409.
var knownActions = map[string]bool{
	manager.ActionClaim:        true,
	manager.ActionStart:        true,
	manager.ActionAwaitPatient: true,
	manager.ActionResume:       true,
	manager.ActionResolve:      true,
	manager.ActionClose:        true,
	manager.ActionCancel:       true,
	manager.ActionEscalate:     true,
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*apperrors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
