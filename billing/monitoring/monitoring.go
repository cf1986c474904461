package monitoring

import (
	"fmt"
	"net/http"
	"os"

	"github.com/newrelic/go-agent/v3/integrations/nrlogrus"
	newrelic "github.com/newrelic/go-agent/v3/newrelic"
	log "github.com/sirupsen/logrus"
)

var a *apm

type apm struct {
	App *newrelic.Application
}

func (a apm) Start(msg string) *newrelic.Transaction {
	if a.App != nil {
		return a.App.StartTransaction(msg)
	}
	return nil
}

func (a apm) End(txn *newrelic.Transaction) {
	if txn != nil {
		txn.End()
	}
}

// WrapHandler instruments a route when the agent is configured; the returned
// pattern/handler pair plugs straight into chi's Get/Post/etc.
func (a apm) WrapHandler(pattern string, h http.HandlerFunc) (string, http.HandlerFunc) {
	if a.App != nil {
		return newrelic.WrapHandleFunc(a.App, pattern, h)
	}
	return pattern, h
}

func GetMonitor() *apm {
	if a == nil {
		target := os.Getenv("DEPLOYMENT_TARGET")
		if target == "" {
			target = "local"
		}
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(fmt.Sprintf("BILLING-%s", target)),
			newrelic.ConfigLicense(os.Getenv("NEW_RELIC_LICENSE_KEY")),
			newrelic.ConfigEnabled(os.Getenv("NEW_RELIC_LICENSE_KEY") != ""),
			nrlogrus.ConfigStandardLogger(),
		)
		if err != nil {
			log.Error(err)
		}
		a = &apm{
			App: app,
		}
	}
	return a
}
