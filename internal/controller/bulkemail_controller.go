// internal/controller/bulkemail_controller.go
package controller

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/coursetrack-backend/internal/auth"
	appErrors "github.com/unclebandit/coursetrack-backend/internal/errors"
	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/service"
)

type BulkEmailController struct {
	JobService *service.JobService
	Log        zerolog.Logger
}

type sendRemindersRequest struct {
	InstructorIDs   []string `json:"instructor_ids"`
	Term            string   `json:"term"`
	Deadline        string   `json:"deadline"`
	PersonalMessage string   `json:"personal_message"`
}

// SendInstructorReminders creates a bulk reminder job and returns its
// id immediately; dispatch runs in the background.
func (c *BulkEmailController) SendInstructorReminders(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	var body sendRemindersRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		// A wrongly typed instructor_ids field is an instructor_ids
		// problem, not a malformed document.
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok && typeErr.Field == "instructor_ids" {
			writeError(w, http.StatusBadRequest, "Missing or invalid 'instructor_ids' in request body")
			return
		}
		writeError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	if len(body.InstructorIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Missing or invalid 'instructor_ids' in request body")
		return
	}

	fields := model.TemplateFields{
		Term:            body.Term,
		Deadline:        body.Deadline,
		PersonalMessage: body.PersonalMessage,
	}

	job, err := c.JobService.CreateJob(session.Scope, body.InstructorIDs, fields)
	if err != nil {
		switch {
		case appErrors.IsInvalidRequest(err) || appErrors.IsEmptyCandidateSet(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case appErrors.IsUnauthorized(err):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			c.Log.Error().Err(err).Msg("job creation failed")
			writeError(w, http.StatusInternalServerError, "failed to create job")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id": service.FormatJobID(job.ID),
	})
}

// JobStatus returns the latest committed snapshot of one job.
func (c *BulkEmailController) JobStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID, ok := service.ParseJobID(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	snapshot, err := c.JobService.GetStatus(session.Scope, jobID)
	if err != nil {
		switch {
		case appErrors.IsJobNotFound(err):
			writeError(w, http.StatusNotFound, "job not found")
		case appErrors.IsForbidden(err):
			writeError(w, http.StatusForbidden, "you may not view this job")
		default:
			c.Log.Error().Int64("job_id", jobID).Err(err).Msg("status query failed")
			writeError(w, http.StatusInternalServerError, "failed to fetch job status")
		}
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// RecentJobs lists jobs visible to the caller's scope, newest first.
func (c *BulkEmailController) RecentJobs(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobs, err := c.JobService.ListRecent(session.Scope)
	if err != nil {
		c.Log.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
