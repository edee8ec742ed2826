package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Detect spans for documents read from Kafka",
		Long: "Consume {\"doc_id\": \"...\", \"text\": \"...\"} records from stream.input_topic and\n" +
			"publish {\"doc_id\": \"...\", \"spans\": [...]} records to stream.output_topic, keyed\n" +
			"by document id.  Records that keep failing go to stream.dead_letter_topic.\n" +
			"Runs until interrupted.  With metrics.listen set, /healthz, /readyz and\n" +
			"/metrics are served on that address.",
		Example: `  DOCTALK_STREAM_BROKERS=kafka:9092 doctalk consume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cliCtx.Config.ValidateStream(); err != nil {
				return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid stream configuration")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withRuntime(ctx, cliCtx, func(setupCtx context.Context, r *Runtime) error {
				consumer, err := r.streamConsumer(setupCtx)
				if err != nil {
					return err
				}
				cfg := r.Config.Stream
				r.Logger.Info("consuming documents",
					logging.Strings("brokers", cfg.Brokers),
					logging.String("input_topic", cfg.InputTopic),
					logging.String("output_topic", cfg.OutputTopic))

				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				g, gctx := errgroup.WithContext(runCtx)
				if r.Config.Metrics.Listen != "" {
					srv, ln, err := r.opsServer()
					if err != nil {
						return err
					}
					g.Go(func() error { return srv.Serve(gctx, ln) })
				}
				g.Go(func() error {
					defer cancel()
					return consumer.Run(gctx)
				})
				if err := g.Wait(); err != nil {
					return err
				}
				stats := consumer.Stats()
				r.Logger.Info("consumer finished",
					logging.Int64("consumed", stats.Consumed),
					logging.Int64("processed", stats.Processed),
					logging.Int64("dead_lettered", stats.DeadLettered))
				return nil
			})
		},
	}
}
