// Package worker executes billing tasks: the idempotent units of work that
// drive a claim from creation through eligibility, EDI generation,
// submission, status polling, and appeal.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vitalpath/billing-app/billing/constants"
	"github.com/vitalpath/billing-app/billing/edi"
	"github.com/vitalpath/billing-app/billing/eligibility"
	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/billing/models/postgres"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/log"
)

// Worker validates and processes billing tasks pulled off the queue.
type Worker interface {
	// ValidateTask resolves the task row named by the queue payload.
	ValidateTask(ctx context.Context, args models.TaskEnqueueArgs) (*models.BillingTask, error)
	// ProcessTask runs the task and records its outcome. A returned error
	// means the queue should retry; nil means the task is settled
	// (completed, a no-op, or permanently failed).
	ProcessTask(ctx context.Context, task models.BillingTask, args models.TaskEnqueueArgs) error
}

type worker struct {
	repository models.Repository
	service    models.Service
	checker    *eligibility.Checker
	generator  *edi.Generator
	provider   edi.ProviderInfo
	logger     logrus.FieldLogger

	ediDir string
	now    func() time.Time
}

func NewWorker(db *sql.DB) Worker {
	r := postgres.NewRepository(db)

	registry, err := eligibility.NewRegistry()
	if err != nil {
		log.Worker.Fatalf("failed to load eligibility provider configuration: %s", err)
	}
	provider, err := edi.LoadProviderInfo()
	if err != nil {
		log.Worker.Fatalf("failed to load billing provider configuration: %s", err)
	}

	return &worker{
		repository: r,
		service:    models.NewService(r, postgres.Transaction(db)),
		checker:    eligibility.NewChecker(r, registry),
		generator:  edi.NewGenerator(),
		provider:   provider,
		logger:     log.Worker,
		ediDir:     utils.FromEnv("BILLING_EDI_DIR", "/var/billing/edi"),
		now:        time.Now,
	}
}

func (w *worker) ValidateTask(ctx context.Context, args models.TaskEnqueueArgs) (*models.BillingTask, error) {
	task, err := w.repository.GetBillingTaskByID(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (w *worker) ProcessTask(ctx context.Context, task models.BillingTask, args models.TaskEnqueueArgs) error {
	logger := w.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.TaskType,
		"attempt":   task.AttemptCount + 1,
	})

	task.AttemptCount++
	task.Status = models.TaskStatusInProgress
	if err := w.repository.UpdateBillingTask(ctx, task); err != nil {
		return err
	}

	done, err := w.dispatch(ctx, &task, args, logger)
	if err != nil {
		msg := err.Error()
		task.LastError = &msg

		if task.AttemptCount >= task.MaxAttempts {
			logger.WithError(err).Error("task failed permanently, attempts exhausted")
			task.Status = models.TaskStatusFailed
			if updateErr := w.repository.UpdateBillingTask(ctx, task); updateErr != nil {
				return updateErr
			}
			// settled; the queue must not retry a permanently failed task
			return nil
		}

		logger.WithError(err).Warn("task failed, will retry")
		task.Status = models.TaskStatusPending
		task.ScheduledAt = w.now()
		if updateErr := w.repository.UpdateBillingTask(ctx, task); updateErr != nil {
			return updateErr
		}
		return err
	}

	if !done {
		logger.Info("task had nothing to do")
	} else {
		logger.Info("task completed")
	}
	task.Status = models.TaskStatusCompleted
	return w.repository.UpdateBillingTask(ctx, task)
}

// dispatch routes to the task-type processor. The bool result reports
// whether work was performed; false with a nil error means "nothing to do",
// which settles the task without marking it failed.
func (w *worker) dispatch(ctx context.Context, task *models.BillingTask, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	switch task.TaskType {
	case constants.TaskCreateClaim:
		return w.processCreateClaim(ctx, args, logger)
	case constants.TaskCheckEligibility:
		return w.processCheckEligibility(ctx, args, logger)
	case constants.TaskGenerateEDI:
		return w.processGenerateEDI(ctx, args, logger)
	case constants.TaskSubmitClaim:
		return w.processSubmitClaim(ctx, args, logger)
	case constants.TaskCheckStatus:
		return w.processCheckStatus(ctx, task, args, logger)
	case constants.TaskFileAppeal:
		return w.processFileAppeal(ctx, args, logger)
	default:
		return false, fmt.Errorf("unknown task type %s", task.TaskType)
	}
}

func (w *worker) processCreateClaim(ctx context.Context, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	report, err := w.repository.GetReportByID(ctx, args.ReportID)
	if err != nil {
		if errors.Is(err, models.ErrReportNotFound) {
			logger.WithField("report_id", args.ReportID).Warn("source report missing, nothing to claim")
			return false, nil
		}
		return false, err
	}

	plan, err := w.repository.GetPrimaryInsurancePlan(ctx, report.UserID)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			return false, fmt.Errorf("user %d has no active primary insurance plan", report.UserID)
		}
		return false, err
	}

	lines := edi.LinesFromBiomarkers(report.ParsedBiomarkers, report.CreatedAt)
	if len(lines) == 0 {
		logger.WithField("report_id", report.ID).Warn("report has no billable biomarkers")
		return false, nil
	}

	claim, err := w.service.CreateClaim(ctx, report.UserID, models.CreateClaimRequest{
		InsurancePlanID: plan.ID,
		ReportID:        &report.ID,
		Lines:           lines,
	})
	if err != nil {
		return false, err
	}

	logger.WithFields(logrus.Fields{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
	}).Info("claim created from report")
	return true, nil
}

func (w *worker) processCheckEligibility(ctx context.Context, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	claim, err := w.repository.GetClaimByID(ctx, args.ClaimID)
	if err != nil {
		if errors.Is(err, models.ErrClaimNotFound) {
			logger.WithField("claim_id", args.ClaimID).Warn("claim missing, nothing to verify")
			return false, nil
		}
		return false, err
	}

	check, err := w.checker.CheckEligibility(ctx, claim.InsurancePlanID)
	if err != nil {
		return false, err
	}

	if check.Status != models.EligibilityStatusActive {
		_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, models.EventEligibilityIssue,
			models.EventData{"eligibility_status": string(check.Status)},
			fmt.Sprintf("coverage is %s, claim not advanced", check.Status))
		return err == nil, err
	}

	if claim.Status != models.ClaimStatusDraft {
		// already advanced by an earlier attempt
		return false, nil
	}

	_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, models.EventEligibilityVerified,
		models.EventData{"status": models.ClaimStatusReady, "eligibility_check_id": check.ID}, "")
	return err == nil, err
}

func (w *worker) processGenerateEDI(ctx context.Context, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	claim, err := w.repository.GetClaimByID(ctx, args.ClaimID)
	if err != nil {
		if errors.Is(err, models.ErrClaimNotFound) {
			return false, nil
		}
		return false, err
	}
	if claim.Status != models.ClaimStatusReady {
		return false, fmt.Errorf("claim %d must be READY to generate EDI, got %s", claim.ID, claim.Status)
	}

	view, err := w.buildClaimView(ctx, claim)
	if err != nil {
		return false, err
	}

	content, err := w.generator.Generate(*view)
	if err != nil {
		return false, err
	}

	fileName := fmt.Sprintf("%s_%d.edi", claim.ClaimNumber, w.now().Unix())
	filePath := filepath.Join(w.ediDir, fileName)
	if err := os.MkdirAll(w.ediDir, 0750); err != nil {
		return false, err
	}
	if err := ioutil.WriteFile(filePath, []byte(content), 0640); err != nil {
		return false, err
	}

	if _, err := w.repository.CreateEDIFile(ctx, models.EDIFile{
		ClaimID:  claim.ID,
		FileName: fileName,
		FilePath: filePath,
		Content:  content,
		Status:   models.EDIFileStatusGenerated,
	}); err != nil {
		return false, err
	}

	claim.EDIFileLocation = &filePath
	if err := w.repository.UpdateClaim(ctx, *claim); err != nil {
		return false, err
	}

	_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, models.EventEDIGenerated,
		models.EventData{"file_name": fileName}, "")
	if err != nil {
		return false, err
	}

	logger.WithFields(logrus.Fields{
		"claim_id":  claim.ID,
		"file_name": fileName,
	}).Info("EDI 837P generated")
	return true, nil
}

func (w *worker) buildClaimView(ctx context.Context, claim *models.Claim) (*edi.ClaimView, error) {
	lines, err := w.repository.GetClaimLines(ctx, claim.ID)
	if err != nil {
		return nil, err
	}

	plan, err := w.repository.GetInsurancePlanByID(ctx, claim.InsurancePlanID)
	if err != nil {
		return nil, err
	}

	profile, err := w.repository.GetUserProfileByID(ctx, claim.UserID)
	if err != nil {
		return nil, err
	}

	subscriber := edi.Person{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Gender:    profile.Gender,
		MemberID:  plan.MemberID,
		Address:   profile.Address,
		City:      profile.City,
		State:     profile.State,
		Zip:       profile.Zip,
	}
	if profile.DateOfBirth != nil {
		subscriber.DateOfBirth = *profile.DateOfBirth
	}

	view := &edi.ClaimView{
		Claim:            claim,
		Lines:            lines,
		Patient:          subscriber,
		Subscriber:       subscriber,
		RelationshipCode: edi.RelationshipSelf,
		Provider:         w.provider,
		Payer:            edi.PayerInfo{Name: plan.PayerName, ID: plan.PayerID},
	}

	if len(lines) == 0 && claim.ReportID != nil {
		report, err := w.repository.GetReportByID(ctx, *claim.ReportID)
		if err != nil {
			return nil, err
		}
		view.Biomarkers = report.ParsedBiomarkers
		view.ServiceDate = report.CreatedAt
	}

	return view, nil
}

func (w *worker) processSubmitClaim(ctx context.Context, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	claim, err := w.repository.GetClaimByID(ctx, args.ClaimID)
	if err != nil {
		if errors.Is(err, models.ErrClaimNotFound) {
			return false, nil
		}
		return false, err
	}
	if claim.Status == models.ClaimStatusSubmitted {
		// An earlier attempt committed the transition. Finish any
		// bookkeeping it did not get to before settling the task.
		return false, w.finishSubmission(ctx, claim, logger)
	}

	file, err := w.repository.GetLatestGeneratedEDIFile(ctx, claim.ID)
	if err != nil {
		return false, err
	}
	if file == nil {
		return false, fmt.Errorf("claim %d has no generated EDI file to submit", claim.ID)
	}

	submitted, err := w.service.SubmitClaim(ctx, claim.UserID, claim.ID)
	if err != nil {
		return false, err
	}
	if err := w.finishSubmission(ctx, submitted, logger); err != nil {
		return false, err
	}
	return true, nil
}

// finishSubmission stamps the clearinghouse tracking ID on a submitted claim
// and marks its generated EDI file submitted. Safe on a retried task: fields
// already stamped are left alone.
func (w *worker) finishSubmission(ctx context.Context, claim *models.Claim, logger logrus.FieldLogger) error {
	if claim.ClearinghouseID == nil {
		// Clearinghouse hand-off. There is no live SFTP integration yet;
		// the tracking ID is assigned locally.
		clearinghouseID := "CH-" + uuid.New()
		claim.ClearinghouseID = &clearinghouseID
		if err := w.repository.UpdateClaim(ctx, *claim); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"claim_id":         claim.ID,
			"clearinghouse_id": clearinghouseID,
		}).Info("claim submitted to clearinghouse")
	}

	file, err := w.repository.GetLatestGeneratedEDIFile(ctx, claim.ID)
	if err != nil {
		return err
	}
	if file != nil {
		if err := w.repository.UpdateEDIFileStatus(ctx, file.ID, models.EDIFileStatusSubmitted); err != nil {
			return err
		}
	}
	return nil
}

var denialReasons = []string{
	"CO-50: not deemed medically necessary",
	"CO-97: service included in another billed service",
	"PR-204: service not covered under the plan",
	"CO-16: claim lacks required information",
}

func (w *worker) processCheckStatus(ctx context.Context, task *models.BillingTask, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	claim, err := w.repository.GetClaimByID(ctx, args.ClaimID)
	if err != nil {
		if errors.Is(err, models.ErrClaimNotFound) {
			return false, nil
		}
		return false, err
	}
	if claim.SubmissionDate == nil || claim.Status != models.ClaimStatusSubmitted {
		return false, fmt.Errorf("claim %d has no pending submission to poll", claim.ID)
	}

	// Simulated adjudication outcome, deterministic per claim and attempt.
	// A real clearinghouse 277 status client replaces this; only the shape
	// of the result matters to the rest of the pipeline.
	rng := rand.New(rand.NewSource(int64(claim.ID)*1000 + int64(task.AttemptCount)))
	roll := rng.Float64()

	switch {
	case roll < 0.6:
		_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, "CLAIM_ACCEPTED",
			models.EventData{"status": models.ClaimStatusAccepted}, "accepted by payer")
		return err == nil, err

	case roll < 0.8:
		_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, "CLAIM_REJECTED",
			models.EventData{"status": models.ClaimStatusRejected}, "rejected by clearinghouse")
		return err == nil, err

	default:
		reason := denialReasons[rng.Intn(len(denialReasons))]
		_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, "CLAIM_DENIED",
			models.EventData{"status": models.ClaimStatusDenied, "denial_reason": reason}, "")
		if err != nil {
			return false, err
		}

		plan, err := w.repository.GetInsurancePlanByID(ctx, claim.InsurancePlanID)
		if err != nil {
			return false, err
		}
		if err := w.repository.IncrementDenialPattern(ctx, plan.PayerID, reason); err != nil {
			return false, err
		}

		logger.WithFields(logrus.Fields{
			"claim_id": claim.ID,
			"payer_id": plan.PayerID,
			"reason":   reason,
		}).Info("claim denied")
		return true, nil
	}
}

func (w *worker) processFileAppeal(ctx context.Context, args models.TaskEnqueueArgs, logger logrus.FieldLogger) (bool, error) {
	if args.Reason == "" {
		return false, fmt.Errorf("an appeal requires a reason")
	}

	claim, err := w.repository.GetClaimByID(ctx, args.ClaimID)
	if err != nil {
		if errors.Is(err, models.ErrClaimNotFound) {
			return false, nil
		}
		return false, err
	}
	if claim.Status != models.ClaimStatusDenied && claim.Status != models.ClaimStatusRejected {
		return false, fmt.Errorf("claim %d cannot be appealed in status %s", claim.ID, claim.Status)
	}

	_, err = w.service.AddClaimEvent(ctx, claim.UserID, claim.ID, models.EventAppealed,
		models.EventData{"status": models.ClaimStatusAppealed, "reason": args.Reason}, args.Reason)
	if err != nil {
		return false, err
	}

	logger.WithField("claim_id", claim.ID).Info("appeal filed")
	return true, nil
}
