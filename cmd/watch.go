package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/presentation"
	"github.com/zjrosen/rankreg/internal/pubsub"
	"github.com/zjrosen/rankreg/internal/source"
	"github.com/zjrosen/rankreg/internal/watch"
)

var watchTimeout time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [query]",
	Short: "Stream service add, modify and remove events",
	Long: `Watch every configured source and print one JSON line per event.

Services already published are replayed as "add" events first, best first.
Descriptor directories are watched for changes while the command runs.
When metrics are enabled and metrics.listen is set, /metrics is served for
the lifetime of the watch.

Examples:
  rankreg watch
  rankreg watch 'region = eu' | jq -r '.kind + " " + .handle.name'
  rankreg watch --timeout 30s`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		f, err := rt.registry.Compile(strings.Join(args, " "))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if watchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchTimeout)
			defer cancel()
		}

		if rt.gatherer != nil && cfg.Metrics.Listen != "" {
			srv, err := metrics.Serve(cfg.Metrics.Listen, rt.gatherer)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		rt.registry.Start(ctx)

		broadcast := watch.NewBroadcast[*source.Descriptor]()
		defer broadcast.Close()
		broadcast.Broker().OnDrop(func(t pubsub.EventType) {
			log.Warn(log.CatWatch, "watch output fell behind, event dropped", "type", string(t))
		})
		events := broadcast.Broker().Subscribe(ctx)

		sub, err := rt.registry.Watch(ctx, f, broadcast)
		if err != nil {
			return err
		}
		defer sub.Cancel()

		return streamEvents(ctx, events, presentation.NewFormatter(cmd.OutOrStdout()))
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchTimeout, "timeout", "t", 0, "Stop watching after this long (0 = until interrupted)")
	rootCmd.AddCommand(watchCmd)
}

// streamEvents writes events until ctx ends or the channel closes. Events
// already buffered when ctx ends are still written.
func streamEvents(ctx context.Context, events <-chan pubsub.Event[watch.Event[*source.Descriptor]], out *presentation.Formatter) error {
	write := func(ev pubsub.Event[watch.Event[*source.Descriptor]]) error {
		if err := out.FormatEvent(presentation.FromEvent(ev.Payload, ev.Timestamp)); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := write(ev); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := write(ev); err != nil {
				return err
			}
		}
	}
}
