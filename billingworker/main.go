package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/vitalpath/billing-app/billing/constants"
	"github.com/vitalpath/billing-app/billing/database"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/billingworker/queueing"
	"github.com/vitalpath/billing-app/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "billingworker"
	app.Usage = "VitalPath billing task worker"
	app.Version = constants.Version
	app.Commands = []cli.Command{
		{
			Name:  "start-worker",
			Usage: "Start processing billing tasks from the queue",
			Action: func(c *cli.Context) error {
				cfg, err := database.LoadConfig()
				if err != nil {
					return err
				}

				db := database.GetDbConnection()
				defer db.Close()

				numWorkers := utils.GetEnvInt("BILLING_WORKER_POOL_SIZE", 4)
				q := queueing.StartQue(db, cfg.QueueDatabaseURL, numWorkers)
				defer q.StopQue()
				log.Worker.Infof("Billing worker started with %d workers", numWorkers)

				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
				log.Worker.Info("Shutting down billing worker")
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Worker.Fatal(err)
	}
}
