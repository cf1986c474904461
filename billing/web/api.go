package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/vitalpath/billing-app/billing/constants"
	"github.com/vitalpath/billing-app/billing/eligibility"
	billingerrors "github.com/vitalpath/billing-app/billing/errors"
	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/billing/web/auth"
	"github.com/vitalpath/billing-app/billingworker/queueing"
	"github.com/vitalpath/billing-app/log"
)

type api struct {
	db         *sql.DB
	repository models.Repository
	service    models.Service
	checker    *eligibility.Checker
	enqueuer   queueing.Enqueuer
}

type errResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Ownership failures are
// presented as not-found so the API does not leak which resources exist.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *billingerrors.ValidationError:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: e.Error(), Field: e.Field})
	case *billingerrors.EntityNotFoundError:
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errResponse{Error: e.Error()})
	case *billingerrors.UnauthorizedError:
		notFound := billingerrors.EntityNotFoundError{Entity: e.Entity, ID: e.ID}
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errResponse{Error: notFound.Error()})
	case *billingerrors.InvalidTransitionError,
		*billingerrors.ClaimNotEditableError,
		*billingerrors.ClaimNotSubmittableError,
		*billingerrors.ClaimNotCancellableError:
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errResponse{Error: err.Error()})
	default:
		log.Request.WithError(err).Error("request failed")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errResponse{Error: "internal server error"})
	}
}

func actor(r *http.Request) uint {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func uintParam(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func badParam(w http.ResponseWriter, r *http.Request, name string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errResponse{Error: "invalid " + name, Field: name})
}

func (a *api) createClaim(w http.ResponseWriter, r *http.Request) {
	var req models.CreateClaimRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	claim, err := a.service.CreateClaim(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, claim)
}

func (a *api) listClaims(w http.ResponseWriter, r *http.Request) {
	filter := models.ClaimFilter{
		Status: models.ClaimStatus(r.URL.Query().Get("status")),
		Limit:  utils.ParseIntOr(r.URL.Query().Get("limit"), 50),
		Offset: utils.ParseIntOr(r.URL.Query().Get("offset"), 0),
	}

	claims, err := a.service.ListClaims(r.Context(), actor(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if claims == nil {
		claims = []*models.Claim{}
	}
	render.JSON(w, r, claims)
}

func (a *api) getClaim(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	claim, err := a.service.GetClaim(r.Context(), actor(r), claimID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, claim)
}

func (a *api) updateClaim(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	var upd models.ClaimUpdate
	if err := render.DecodeJSON(r.Body, &upd); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	claim, err := a.service.UpdateClaim(r.Context(), actor(r), claimID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, claim)
}

func (a *api) deleteClaim(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	if err := a.service.DeleteClaim(r.Context(), actor(r), claimID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) submitClaim(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	claim, err := a.service.SubmitClaim(r.Context(), actor(r), claimID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, claim)
}

type claimEventRequest struct {
	EventType string           `json:"event_type"`
	EventData models.EventData `json:"event_data,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

func (a *api) addClaimEvent(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	var req claimEventRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	event, err := a.service.AddClaimEvent(r.Context(), actor(r), claimID, req.EventType, req.EventData, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, event)
}

func (a *api) getClaimEvents(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	events, err := a.service.GetClaimEvents(r.Context(), actor(r), claimID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.ClaimEvent{}
	}
	render.JSON(w, r, events)
}

type appealRequest struct {
	Reason string `json:"reason"`
}

func (a *api) fileAppeal(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	var req appealRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Reason == "" {
		writeError(w, r, &billingerrors.ValidationError{Field: "reason", Msg: "must not be empty"})
		return
	}

	a.enqueueTask(w, r, constants.TaskFileAppeal, claimID, 0, req.Reason)
}

func (a *api) generateEDI(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}
	a.enqueueTask(w, r, constants.TaskGenerateEDI, claimID, 0, "")
}

func (a *api) getEDIFile(w http.ResponseWriter, r *http.Request) {
	claimID, ok := uintParam(r, "claimID")
	if !ok {
		badParam(w, r, "claimID")
		return
	}

	// ownership gate before touching the artifact
	if _, err := a.service.GetClaim(r.Context(), actor(r), claimID); err != nil {
		writeError(w, r, err)
		return
	}

	file, err := a.repository.GetLatestGeneratedEDIFile(r.Context(), claimID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if file == nil {
		writeError(w, r, &billingerrors.EntityNotFoundError{Entity: "edi file", ID: claimID})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+file.FileName)
	_, _ = w.Write([]byte(file.Content))
}

func (a *api) checkEligibility(w http.ResponseWriter, r *http.Request) {
	planID, ok := uintParam(r, "planID")
	if !ok {
		badParam(w, r, "planID")
		return
	}

	plan, err := a.repository.GetInsurancePlanByID(r.Context(), planID)
	if err != nil {
		writeError(w, r, &billingerrors.EntityNotFoundError{Entity: "insurance plan", ID: planID})
		return
	}
	if plan.UserID != actor(r) {
		writeError(w, r, &billingerrors.UnauthorizedError{Entity: "insurance plan", ID: planID, UserID: actor(r)})
		return
	}

	if serviceType := r.URL.Query().Get("service_type"); serviceType != "" {
		covered, err := a.checker.VerifyCoverage(r.Context(), planID, eligibility.ServiceType(serviceType))
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"service_type": serviceType,
			"covered":      covered,
		})
		return
	}

	check, err := a.checker.CheckEligibility(r.Context(), planID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, check)
}

type taskRequest struct {
	TaskType string `json:"task_type"`
	ClaimID  uint   `json:"claim_id,omitempty"`
	ReportID uint   `json:"report_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (a *api) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResponse{Error: "invalid request body"})
		return
	}

	switch req.TaskType {
	case constants.TaskCreateClaim:
		if req.ReportID == 0 {
			writeError(w, r, &billingerrors.ValidationError{Field: "report_id", Msg: "required for " + req.TaskType})
			return
		}
	case constants.TaskCheckEligibility, constants.TaskGenerateEDI,
		constants.TaskSubmitClaim, constants.TaskCheckStatus:
		if req.ClaimID == 0 {
			writeError(w, r, &billingerrors.ValidationError{Field: "claim_id", Msg: "required for " + req.TaskType})
			return
		}
	case constants.TaskFileAppeal:
		if req.ClaimID == 0 {
			writeError(w, r, &billingerrors.ValidationError{Field: "claim_id", Msg: "required for " + req.TaskType})
			return
		}
		if req.Reason == "" {
			writeError(w, r, &billingerrors.ValidationError{Field: "reason", Msg: "required for " + req.TaskType})
			return
		}
	default:
		writeError(w, r, &billingerrors.ValidationError{Field: "task_type", Msg: "unknown task type"})
		return
	}

	a.enqueueTask(w, r, req.TaskType, req.ClaimID, req.ReportID, req.Reason)
}

// enqueueTask records the task row and places it on the queue, checking the
// actor owns whatever the task will touch.
func (a *api) enqueueTask(w http.ResponseWriter, r *http.Request, taskType string, claimID, reportID uint, reason string) {
	if a.enqueuer == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, errResponse{Error: "task queue unavailable"})
		return
	}

	userID := actor(r)

	if claimID != 0 {
		if _, err := a.service.GetClaim(r.Context(), userID, claimID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if reportID != 0 {
		report, err := a.repository.GetReportByID(r.Context(), reportID)
		if err != nil || report.UserID != userID {
			writeError(w, r, &billingerrors.EntityNotFoundError{Entity: "report", ID: reportID})
			return
		}
	}

	task := models.BillingTask{
		TaskType:    taskType,
		UserID:      userID,
		Status:      models.TaskStatusPending,
		MaxAttempts: utils.GetEnvInt("BILLING_TASK_MAX_ATTEMPTS", 3),
		ScheduledAt: time.Now(),
	}
	if claimID != 0 {
		task.ClaimID = &claimID
	}
	if reportID != 0 {
		task.ReportID = &reportID
	}

	taskID, err := a.repository.CreateBillingTask(r.Context(), task)
	if err != nil {
		writeError(w, r, err)
		return
	}
	task.ID = taskID

	err = a.enqueuer.AddTask(models.TaskEnqueueArgs{
		TaskID:   taskID,
		TaskType: taskType,
		ClaimID:  claimID,
		ReportID: reportID,
		UserID:   userID,
		Reason:   reason,
	}, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, task)
}

func (a *api) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := uintParam(r, "taskID")
	if !ok {
		badParam(w, r, "taskID")
		return
	}

	task, err := a.ownedTask(r, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, task)
}

func (a *api) retryTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := uintParam(r, "taskID")
	if !ok {
		badParam(w, r, "taskID")
		return
	}
	if a.enqueuer == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, errResponse{Error: "task queue unavailable"})
		return
	}

	task, err := a.ownedTask(r, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if task.Status != models.TaskStatusFailed {
		writeError(w, r, &billingerrors.ValidationError{Field: "status",
			Msg: "only failed tasks can be retried"})
		return
	}
	if task.TaskType == constants.TaskFileAppeal {
		// the appeal reason travels only in the queue payload; file a new
		// appeal instead of retrying the exhausted task
		writeError(w, r, &billingerrors.ValidationError{Field: "task_type",
			Msg: "appeal tasks cannot be retried, file a new appeal"})
		return
	}

	task.Status = models.TaskStatusPending
	task.AttemptCount = 0
	task.LastError = nil
	if err := a.repository.UpdateBillingTask(r.Context(), *task); err != nil {
		writeError(w, r, err)
		return
	}

	args := models.TaskEnqueueArgs{
		TaskID:   task.ID,
		TaskType: task.TaskType,
		UserID:   task.UserID,
	}
	if task.ClaimID != nil {
		args.ClaimID = *task.ClaimID
	}
	if task.ReportID != nil {
		args.ReportID = *task.ReportID
	}
	if err := a.enqueuer.AddTask(args, 0); err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, task)
}

func (a *api) ownedTask(r *http.Request, taskID uint) (*models.BillingTask, error) {
	task, err := a.repository.GetBillingTaskByID(r.Context(), taskID)
	if err != nil {
		return nil, &billingerrors.EntityNotFoundError{Entity: "billing task", ID: taskID}
	}
	if task.UserID != actor(r) {
		return nil, &billingerrors.UnauthorizedError{Entity: "billing task", ID: taskID, UserID: actor(r)}
	}
	return task, nil
}

func (a *api) getVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": constants.Version})
}

func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"database": "error"})
		return
	}
	render.JSON(w, r, map[string]string{"database": "ok"})
}
