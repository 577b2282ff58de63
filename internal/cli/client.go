package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/app"
	"github.com/me/gochef/internal/config"
	"github.com/me/gochef/internal/logging"
	"github.com/me/gochef/pkg/model"
)

var errNotSignedIn = errors.New("not signed in (run gochef signin)")

// outputMu serializes writes from background notifications and commands.
var outputMu sync.Mutex

type syncWriter struct{ w io.Writer }

func (s syncWriter) Write(p []byte) (int, error) {
	outputMu.Lock()
	defer outputMu.Unlock()
	return s.w.Write(p)
}

// openClient loads the configuration, applies flag overrides and builds the
// client for this invocation, restoring any stored session.
func openClient(cmd *cobra.Command) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	override("auth-url", &cfg.AuthURL, flagAuthURL)
	override("recipe-url", &cfg.RecipeURL, flagRecipeURL)
	override("push-url", &cfg.PushURL, flagPushURL)
	override("storage", &cfg.Storage.Backend, flagStorage)
	override("storage-path", &cfg.Storage.Path, flagStoragePath)
	override("log-level", &cfg.LogLevel, flagLogLevel)
	override("log-format", &cfg.LogFormat, flagLogFormat)
	if flagDebug {
		cfg.LogLevel = "debug"
	}

	logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, syncWriter{cmd.ErrOrStderr()})
	logger.Debug("config loaded", "auth_url", cfg.AuthURL, "recipe_url", cfg.RecipeURL, "storage", cfg.Storage.Backend)

	c, err := app.New(cmd.Context(), cfg, logger, app.WithRegisterer(metrics))
	if err != nil {
		return err
	}
	c.Toasts.Subscribe(toastPrinter(cmd.ErrOrStderr()))
	c.Restore(cmd.Context())
	client = c
	return nil
}

// toastPrinter writes each notification once as it appears.
func toastPrinter(out io.Writer) func([]model.Toast) {
	w := syncWriter{out}
	var mu sync.Mutex
	seen := make(map[string]bool)
	return func(toasts []model.Toast) {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range toasts {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			fmt.Fprintf(w, "[%s] %s\n", t.Type, t.Message)
		}
	}
}

func requireSession() error {
	if !client.Session.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
