package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/profile"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

var version = "1.0.0"

// globalFlags are shared by every command.
type globalFlags struct {
	verbose    bool
	debug      bool
	logLevel   string
	profilesDB string
}

// extraCrawlOptions are appended to every crawler the CLI builds.
var extraCrawlOptions []crawler.Option

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "apihunter",
		Short: "API Endpoint Hunter - discover and document the APIs behind a web app",
		Long: `API Endpoint Hunter drives a real browser through a web application, records
the API calls its pages make and writes OpenAPI and Markdown documentation
for every endpoint it finds.

Form logins, session cookies, auth headers and interactive 2FA are supported.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.logLevel == "" {
				return nil
			}
			_, err := logger.ParseLevel(g.logLevel)
			return err
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides -v)")
	rootCmd.PersistentFlags().StringVar(&g.profilesDB, "profiles-db", "", "Profile database (default ~/.apihunter/profiles.db)")

	rootCmd.AddCommand(newCrawlCmd(g))
	rootCmd.AddCommand(newServeCmd(g))
	rootCmd.AddCommand(newProfileCmd(g))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apihunter %s\n", version)
		},
	}
}

// newLogger builds the CLI logger. Without -v only warnings are shown so the
// progress line stays readable.
func (g *globalFlags) newLogger(w io.Writer) *logger.Logger {
	level := logger.WarnLevel
	switch {
	case g.debug:
		level = logger.DebugLevel
	case g.logLevel != "":
		level, _ = logger.ParseLevel(g.logLevel)
	case g.verbose:
		level = logger.InfoLevel
	}
	return logger.New(logger.Config{
		Level:     level,
		Pretty:    true,
		Output:    w,
		Component: "apihunter",
	})
}

func (g *globalFlags) openProfiles(log *logger.Logger) (*profile.Store, error) {
	return profile.Open(g.profilesDB, log)
}
