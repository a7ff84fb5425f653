// Command mktimetx turns a receiver log into RINEX observation/navigation
// files and CGGTTS time-transfer tracks, reading its run description from a
// section/key/value text configuration file (spec.md §6).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/bipm-ttc/mktimetx/pkg/config"
	"github.com/bipm-ttc/mktimetx/pkg/orchestrator"
)

var version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "mktimetx",
		Usage:   "process a GNSS receiver log into RINEX and CGGTTS files",
		Version: version,
		Authors: []*cli.Author{
			{Name: "BIPM Time Department"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the run's section/key/value configuration file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "cron expression to re-run on a recurring schedule, instead of running once",
			},
			&cli.IntFlag{
				Name:  "metrics-port",
				Usage: "serve Prometheus metrics on this port while --schedule is running (0 disables)",
				Value: 0,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mktimetx: %v", err)
	}
}

func run(c *cli.Context) error {
	cfgPath := c.String("config")

	if schedule := c.String("schedule"); schedule != "" {
		return runScheduled(cfgPath, schedule, c.Int("metrics-port"))
	}

	return runOnce(cfgPath)
}

func runOnce(cfgPath string) error {
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfgPath, err)
	}

	sum, err := orchestrator.Run(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("run %s: %w", sum.RunID, err)
	}

	logSummary(sum)
	if len(sum.Errors) > 0 {
		return fmt.Errorf("run %s completed with %d errors", sum.RunID, len(sum.Errors))
	}
	return nil
}

func runScheduled(cfgPath, schedule string, metricsPort int) error {
	if metricsPort > 0 {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", metricsPort)
			log.Printf("mktimetx: serving metrics on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Printf("mktimetx: metrics server stopped: %v", err)
			}
		}()
	}

	sched := cron.New()
	_, err := sched.AddFunc(schedule, func() {
		if err := runOnce(cfgPath); err != nil {
			log.Printf("mktimetx: scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parsing schedule %q: %w", schedule, err)
	}

	log.Printf("mktimetx: scheduled with %q, waiting for next firing", schedule)
	sched.Run()
	return nil
}

func logSummary(sum *orchestrator.Summary) {
	log.Printf("mktimetx: run %s finished in %s", sum.RunID, sum.Elapsed.Round(time.Millisecond))
	log.Printf("mktimetx: lines=%d measurements=%d ephemerides=%d bad=%d",
		sum.LinesRead, sum.MeasurementsRead, sum.EphemeridesRead, sum.BadMeasurements)
	for sys, n := range sum.MSAmbiguityDropped {
		if n > 0 {
			log.Printf("mktimetx: %d measurements dropped to ms ambiguity for %v", n, sys)
		}
	}
	for out, n := range sum.TracksByOutput {
		log.Printf("mktimetx: wrote %d tracks to %s", n, out)
	}
	for _, e := range sum.Errors {
		log.Printf("mktimetx: error: %v", e)
	}
}
