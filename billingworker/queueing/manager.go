package queueing

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/billingworker/worker"
	"github.com/vitalpath/billing-app/conf"
	"github.com/vitalpath/billing-app/log"
)

// queue is responsible for retrieving tasks using the que client and
// delegating the work to the underlying worker.
type queue struct {
	quePool *que.WorkerPool
	pool    *pgx.ConnPool
	mainDB  *sql.DB

	worker worker.Worker
	log    logrus.FieldLogger

	// MaxNotFoundRetries bounds how long we wait for the task row to appear
	// when the queue entry outruns the transaction that created it.
	MaxNotFoundRetries int32 `conf:"BILLING_WORKER_MAX_TASK_NOT_FOUND_RETRIES" conf_default:"3"`
}

// StartQue creates a que-go client and begins listening for tasks. It
// returns immediately since all of the associated workers are started in
// separate goroutines.
func StartQue(mainDB *sql.DB, queueDatabaseURL string, numWorkers int) *queue {
	q := &queue{
		mainDB: mainDB,
		worker: worker.NewWorker(mainDB),
		log:    log.Worker,
	}
	if err := conf.Checkout(q); err != nil {
		q.log.Fatalf("Could not load queue configuration: %s", err)
	}

	pool, err := QueueConnPool(queueDatabaseURL)
	if err != nil {
		q.log.Fatal(err)
	}
	q.pool = pool

	qc := que.NewClient(q.pool)
	wm := que.WorkMap{
		queProcessTask: q.processTask,
	}

	q.quePool = que.NewWorkerPool(qc, wm, numWorkers)
	q.quePool.Start()

	return q
}

// StopQue cleans up any resources created.
func (q *queue) StopQue() {
	q.quePool.Shutdown()
	q.pool.Close()
}

func (q *queue) processTask(queJob *que.Job) error {
	ctx := context.Background()

	var args models.TaskEnqueueArgs
	if err := json.Unmarshal(queJob.Args, &args); err != nil {
		// ACK the job because retrying it won't help us deserialize the data
		q.log.Warnf("Failed to deserialize job.Args '%s' %s. Removing queue entry.", queJob.Args, err)
		return nil
	}

	logger := q.log.WithFields(logrus.Fields{
		"task_id":   args.TaskID,
		"task_type": args.TaskType,
	})

	task, err := q.worker.ValidateTask(ctx, args)
	if errors.Is(err, models.ErrTaskNotFound) {
		// The enqueue can land before the task row's transaction commits.
		// The backoff delay gives the row time to appear; past the retry
		// budget it never will.
		if queJob.ErrorCount >= q.MaxNotFoundRetries {
			logger.Error("No task found. Retries exhausted. Removing queue entry.")
			return nil
		}
		logger.Warn("No task found. Will retry.")
		return errors.Wrap(models.ErrTaskNotFound, "could not retrieve task from database")
	} else if err != nil {
		return err
	}

	if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusFailed {
		// settled by an earlier delivery
		return nil
	}

	if args.ClaimID != 0 {
		unlock, err := q.lockClaim(ctx, args.ClaimID)
		if err != nil {
			return err
		}
		defer unlock()
	}

	return q.worker.ProcessTask(ctx, *task, args)
}

// lockClaim serializes task processing per claim with a session advisory
// lock held on a pinned connection. Concurrent tasks for different claims
// proceed in parallel.
func (q *queue) lockClaim(ctx context.Context, claimID uint) (func(), error) {
	conn, err := q.mainDB.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not acquire connection for claim lock")
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", int64(claimID)); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "could not lock claim %d", claimID)
	}

	return func() {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", int64(claimID)); err != nil {
			q.log.Errorf("Could not unlock claim %d: %s", claimID, err)
		}
		conn.Close()
	}, nil
}
