package cli

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/app"
)

var (
	flagConfig      string
	flagAuthURL     string
	flagRecipeURL   string
	flagPushURL     string
	flagStorage     string
	flagStoragePath string
	flagJSON        bool
	flagDebug       bool
	flagLogLevel    string
	flagLogFormat   string

	logger  *slog.Logger
	client  *app.App
	metrics *prometheus.Registry
)

// NewRootCmd creates the root cobra command for the gochef CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gochef",
		Short: "Command line client for the recipe service",
		Long:  "gochef signs in to the recipe service, keeps the session fresh and calls the recipe, favorite and comment APIs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			metrics = prometheus.NewRegistry()
			metrics.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return openClient(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return Close()
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.gochef/config.yaml)")
	pf.StringVar(&flagAuthURL, "auth-url", "", "Auth backend URL (or GOCHEF_AUTH_URL)")
	pf.StringVar(&flagRecipeURL, "recipe-url", "", "Recipe backend URL (or GOCHEF_RECIPE_URL)")
	pf.StringVar(&flagPushURL, "push-url", "", "Websocket URL for server-pushed session events")
	pf.StringVar(&flagStorage, "storage", "", "Storage backend: sqlite, postgres, redis, memory")
	pf.StringVar(&flagStoragePath, "storage-path", "", "SQLite database path (default ~/.gochef/gochef.db)")
	pf.BoolVar(&flagJSON, "json", false, "Print results as JSON")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSignInCmd(),
		newSignUpCmd(),
		newSignOutCmd(),
		newWhoAmICmd(),
		newAccountCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newRecipesCmd(),
		newFavoritesCmd(),
		newCommentsCmd(),
		newAdminCmd(),
		newContactCmd(),
		newVerifyCmd(),
		newRequestCmd(),
		newWatchCmd(),
	)

	return root
}

// Close releases the client opened for the last command. It is safe to
// call when no command ran.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
