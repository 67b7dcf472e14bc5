package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/config"
	"github.com/callinsights/transcribe-orchestrator/internal/queue"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/lthibault/jitterbug/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type workerOptions struct {
	ReapInterval  time.Duration
	Notifications bool
}

func (o *workerOptions) Bind(fs *pflag.FlagSet) {
	fs.DurationVarP(&o.ReapInterval, "reap-interval", "", time.Hour, "interval between deletions of expired batch rows, 0 disables the reaper")
	fs.BoolVarP(&o.Notifications, "notifications", "", true, "also consume the notification queue when one is configured")
}

var workerOpts = &workerOptions{}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the work and notification queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		sync := initLogging(cfg)
		defer sync()

		zap.S().Info("Starting worker")
		defer zap.S().Info("Worker stopped")

		if err := cfg.ValidateWorker(); err != nil {
			zap.S().Fatalw("invalid configuration", "error", service.NewErrConfiguration(err))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing worker", "error", err)
		}
		defer c.store.Close()

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			consumer := queue.NewConsumer(c.clients.SQS, cfg.AWS.WorkQueueURL, zap.S().Named("work_queue"))
			return consumer.Run(gctx, c.worker.Handle)
		})

		if workerOpts.Notifications && cfg.AWS.NotificationQueueURL != "" {
			g.Go(func() error {
				consumer := queue.NewConsumer(c.clients.SQS, cfg.AWS.NotificationQueueURL, zap.S().Named("notification_queue"))
				return consumer.Run(gctx, c.dispatcher.HandleMessage)
			})
		}

		if workerOpts.ReapInterval > 0 {
			g.Go(func() error {
				reapExpired(gctx, c.store.BatchJob(), workerOpts.ReapInterval)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			zap.S().Errorw("worker stopped with error", "error", err)
			return err
		}
		return nil
	},
}

// reapExpired deletes expired batch rows until ctx is done. Stores with
// native expiry report zero deletions.
func reapExpired(ctx context.Context, tracker store.BatchJob, interval time.Duration) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 60})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tracker.DeleteExpired(ctx, time.Now())
			if err != nil {
				zap.S().Named("reaper").Errorw("failed to delete expired batch rows", "error", err)
				continue
			}
			if n > 0 {
				zap.S().Named("reaper").Infow("deleted expired batch rows", "count", n)
			}
		}
	}
}

func init() {
	workerOpts.Bind(workerCmd.Flags())
}
