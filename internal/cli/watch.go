package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/api"
	"github.com/me/gochef/pkg/model"
)

func newWatchCmd() *cobra.Command {
	var (
		metricsAddr string
		duration    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and report session and backend changes",
		Long: "Run the background session loops (profile refresh, ban checks, server push) and the " +
			"backend health monitor until interrupted, printing every state change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if metricsAddr != "" {
				ln, err := net.Listen("tcp", metricsAddr)
				if err != nil {
					return fmt.Errorf("listen %s: %w", metricsAddr, err)
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
				srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", ln.Addr())
			}

			w := syncWriter{cmd.OutOrStdout()}
			client.Session.OnStateChange(func(from, to model.SessionState) {
				fmt.Fprintf(w, "%s session %s -> %s\n", time.Now().Format(time.TimeOnly), from, to)
			})
			client.Router.OnChange(func(from, to string) {
				fmt.Fprintf(w, "%s view %s -> %s\n", time.Now().Format(time.TimeOnly), from, to)
			})

			if err := client.Start(ctx, true); err != nil {
				return err
			}
			if user := client.User(ctx); user != nil && client.Session.IsAuthenticated() {
				fmt.Fprintf(w, "Watching session of %s\n", user.Username)
			} else {
				fmt.Fprintln(w, "Not signed in; watching backend health only")
			}

			<-ctx.Done()
			if last := client.Health.Last(); last.Status != api.StatusUnknown {
				fmt.Fprintf(w, "Backend %s at %s\n", last.Status, last.CheckedAt.Format(time.TimeOnly))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")
	return cmd
}
