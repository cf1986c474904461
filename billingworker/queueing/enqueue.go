// Package queueing connects the billing worker to its postgres-backed work
// queue. The Enqueuer half inserts tasks; the manager half pulls them off
// and hands them to the worker.
package queueing

import (
	"encoding/json"
	"time"

	"github.com/bgentry/que-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"

	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/log"
)

const queProcessTask = "ProcessBillingTask"

// Enqueuer only handles inserting task entries into the queue table. It is
// an interface so API handlers can be tested without a live queue.
type Enqueuer interface {
	AddTask(args models.TaskEnqueueArgs, priority int16) error
}

func NewEnqueuer(pool *pgx.ConnPool) Enqueuer {
	return queEnqueuer{que.NewClient(pool)}
}

type queEnqueuer struct {
	*que.Client
}

func (q queEnqueuer) AddTask(args models.TaskEnqueueArgs, priority int16) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "could not marshal task args")
	}

	return q.Enqueue(&que.Job{
		Type:     queProcessTask,
		Args:     payload,
		Priority: priority,
	})
}

// QueueConnPool dials the queue database, retrying with exponential backoff
// so worker startup tolerates the database coming up after us.
func QueueConnPool(queueDatabaseURL string) (*pgx.ConnPool, error) {
	cfg, err := pgx.ParseURI(queueDatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid queue database URL")
	}

	var pool *pgx.ConnPool
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute

	err = backoff.RetryNotify(func() error {
		pool, err = pgx.NewConnPool(pgx.ConnPoolConfig{
			ConnConfig:   cfg,
			AfterConnect: que.PrepareStatements,
		})
		return err
	}, bo, func(err error, d time.Duration) {
		log.Worker.Warnf("Could not connect to queue database, retrying in %s: %s", d, err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to queue database")
	}

	return pool, nil
}
