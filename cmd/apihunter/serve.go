package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/APIHunter/internal/shutdown"
	"github.com/PentesterFlow/APIHunter/internal/web"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

type serveFlags struct {
	addr      string
	outputDir string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the live monitor",
		Long: `Serve the live monitor: start and stop hunts over HTTP, follow them over a
WebSocket, answer 2FA challenges remotely and download the generated docs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", crawler.DefaultConfig().OutputDir, "Output directory for docs and snapshots")

	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, f *serveFlags) error {
	log := g.newLogger(cmd.ErrOrStderr())

	sd := shutdown.New(shutdown.Config{
		Logger: log,
		OnForce: func(os.Signal) {
			os.Exit(130)
		},
	})
	sd.Listen()
	defer sd.Close()

	srv := web.NewServer(f.outputDir,
		web.WithLogger(log),
		web.WithCrawlOptions(extraCrawlOptions...),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Live monitor on http://%s (docs in %s)\n", f.addr, f.outputDir)
	return srv.ListenAndServe(sd.Context(), f.addr)
}
