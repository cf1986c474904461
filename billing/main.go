package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli"

	"github.com/vitalpath/billing-app/billing/constants"
	"github.com/vitalpath/billing-app/billing/database"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/billing/web"
	"github.com/vitalpath/billing-app/billingworker/queueing"
	"github.com/vitalpath/billing-app/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "billing"
	app.Usage = "VitalPath claims billing API CLI"
	app.Version = constants.Version
	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the billing API",
			Action: func(c *cli.Context) error {
				cfg, err := database.LoadConfig()
				if err != nil {
					return err
				}

				pool, err := queueing.QueueConnPool(cfg.QueueDatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()

				db := database.GetDbConnection()
				defer db.Close()

				addr := fmt.Sprintf(":%s", utils.FromEnv("BILLING_API_PORT", "3000"))
				log.API.Infof("Starting billing API on %s", addr)
				return http.ListenAndServe(addr, web.NewAPIRouter(db, queueing.NewEnqueuer(pool)))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.API.Fatal(err)
	}
}
