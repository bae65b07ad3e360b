package main

import (
	"fmt"
	"os"

	"fundledger/cmd/reclassify"
	"fundledger/cmd/service"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Fundledger CMD"
	app.Usage = "The fund ledger command line interface"

	app.Commands = []cli.Command{
		serviceCMD,
		reclassifyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serviceCMD = cli.Command{
		Name:        "service",
		Usage:       "run the ledger service",
		Action:      serviceAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the poll, reconcile and query service`,
	}
	reclassifyCMD = cli.Command{
		Name:        "reclassify",
		Usage:       "replay the classifier over stored history",
		Action:      reclassifyAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Replay classification and run one reconciliation pass`,
	}
)

func serviceAction(_ *cli.Context) error {

	logrus.Info("Starting ledger service CMD")

	svc := &service.Service{Log: logrus.WithField("cmd", "service")}
	err := svc.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func reclassifyAction(_ *cli.Context) error {

	logrus.Info("Starting reclassify CMD")

	rc := &reclassify.Reclassify{Log: logrus.WithField("cmd", "reclassify")}
	err := rc.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
