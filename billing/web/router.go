package web

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitalpath/billing-app/billing/eligibility"
	"github.com/vitalpath/billing-app/billing/logging"
	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/billing/models/postgres"
	"github.com/vitalpath/billing-app/billing/monitoring"
	"github.com/vitalpath/billing-app/billing/web/auth"
	"github.com/vitalpath/billing-app/billingworker/queueing"
	"github.com/vitalpath/billing-app/log"
)

// NewAPIRouter wires the claims API. The enqueuer may be nil in contexts
// where no queue is reachable; task-producing endpoints then return 503.
func NewAPIRouter(db *sql.DB, enqueuer queueing.Enqueuer) http.Handler {
	repository := postgres.NewRepository(db)

	registry, err := eligibility.NewRegistry()
	if err != nil {
		log.API.Fatalf("failed to load eligibility provider configuration: %s", err)
	}

	a := &api{
		db:         db,
		repository: repository,
		service:    models.NewService(repository, postgres.Transaction(db)),
		checker:    eligibility.NewChecker(repository, registry),
		enqueuer:   enqueuer,
	}
	return a.routes()
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(auth.ParseUser, logging.NewStructuredLogger(), SecurityHeader, ConnectionClose)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Post(m.WrapHandler("/claims", a.createClaim))
		r.Get(m.WrapHandler("/claims", a.listClaims))
		r.Get(m.WrapHandler("/claims/{claimID}", a.getClaim))
		r.Put(m.WrapHandler("/claims/{claimID}", a.updateClaim))
		r.Delete(m.WrapHandler("/claims/{claimID}", a.deleteClaim))
		r.Post(m.WrapHandler("/claims/{claimID}/submit", a.submitClaim))
		r.Post(m.WrapHandler("/claims/{claimID}/events", a.addClaimEvent))
		r.Get(m.WrapHandler("/claims/{claimID}/events", a.getClaimEvents))
		r.Post(m.WrapHandler("/claims/{claimID}/appeal", a.fileAppeal))
		r.Post(m.WrapHandler("/claims/{claimID}/edi", a.generateEDI))
		r.Get(m.WrapHandler("/claims/{claimID}/edi", a.getEDIFile))

		r.Get(m.WrapHandler("/insurance-plans/{planID}/eligibility", a.checkEligibility))

		r.Post(m.WrapHandler("/tasks", a.createTask))
		r.Get(m.WrapHandler("/tasks/{taskID}", a.getTask))
		r.Post(m.WrapHandler("/tasks/{taskID}/retry", a.retryTask))
	})

	r.Get(m.WrapHandler("/_version", a.getVersion))
	r.Get(m.WrapHandler("/_health", a.healthCheck))

	return r
}
