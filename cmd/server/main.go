// Command server runs the data-store binary: command engine, AOF,
// RDB snapshots, and master/slave replication (C1-C8, C10-C13).
// Structured the way the teacher's cmd/server/main.go wires flags into
// a Config and starts the listener, replacing its raw `flag` parsing
// with a cobra root command that takes the YAML config path as its
// sole positional argument (spec.md §6, C11).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alicekv/alicedb/internal/config"
	"github.com/alicekv/alicedb/internal/server"
)

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:   "server [config.yaml]",
		Short: "Run the data-store server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			log := logrus.New()
			if lvl, err := logrus.ParseLevel(logLevel); err == nil {
				log.SetLevel(lvl)
			}

			srv, err := server.New(cfg, log)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			if err := srv.LoadOnStartup(); err != nil {
				return fmt.Errorf("load on startup: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				srv.Shutdown()
				os.Exit(0)
			}()

			log.WithFields(logrus.Fields{"ip": cfg.IP, "port": cfg.Port}).Info("starting server")
			return srv.Start()
		},
	}
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
