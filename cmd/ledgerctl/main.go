package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/partsledger/partsledger/cmd/ledgerctl/ops"
	"github.com/partsledger/partsledger/internal/app"
	"github.com/partsledger/partsledger/internal/platform/cache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerctl",
		Usage: "operate the parts ledger: background jobs and customer balances",
		Commands: []*cli.Command{
			{
				Name:  "jobs",
				Usage: "inspect and trigger background jobs",
				Subcommands: []*cli.Command{
					{
						Name:      "trigger",
						Usage:     "enqueue a job now",
						ArgsUsage: "<balance:warmup|idempotency:cleanup>",
						Action: func(c *cli.Context) error {
							if c.NArg() != 1 {
								return cli.Exit("trigger takes exactly one job name", 2)
							}
							return withJobs(func(j *ops.JobsCLI) error {
								return j.Trigger(c.Context, c.App.Writer, c.Args().First())
							})
						},
					},
					{
						Name:  "stats",
						Usage: "show default queue counters",
						Action: func(c *cli.Context) error {
							return withJobs(func(j *ops.JobsCLI) error { return j.Stats(c.App.Writer) })
						},
					},
					{
						Name:  "scheduled",
						Usage: "list scheduled tasks",
						Flags: []cli.Flag{&cli.IntFlag{Name: "size", Value: 10}},
						Action: func(c *cli.Context) error {
							return withJobs(func(j *ops.JobsCLI) error { return j.Scheduled(c.App.Writer, c.Int("size")) })
						},
					},
				},
			},
			{
				Name:      "balance",
				Usage:     "print a customer's running balance",
				ArgsUsage: "<customer-id>",
				Action: func(c *cli.Context) error {
					id, err := strconv.ParseInt(c.Args().First(), 10, 64)
					if err != nil || id <= 0 {
						return cli.Exit("balance takes a positive customer id", 2)
					}
					cfg, err := app.LoadConfig()
					if err != nil {
						return err
					}
					logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
					svc, err := app.BuildServices(c.Context, cfg, logger, nil)
					if err != nil {
						return err
					}
					defer svc.Close()
					return ops.PrintBalance(c.Context, c.App.Writer, svc.Balances, id)
				},
			},
		},
	}
}

func withJobs(fn func(*ops.JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	j := ops.NewJobsCLI(cache.QueueOpts(cfg.RedisOptions()))
	defer j.Close()
	return fn(j)
}
