// Command sentinel runs a standalone Sentinel process: master/slave
// health monitoring, quorum-based objective-down detection, and
// Raft-style failover (C9). Structured after the teacher's
// cmd/sentinel/main.go flag wiring, replaced with a cobra root command
// reading a YAML config (spec.md §6, C10/C11).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alicekv/alicedb/internal/config"
	"github.com/alicekv/alicedb/internal/sentinel"
)

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:   "sentinel [config.yaml]",
		Short: "Run a Sentinel failover monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.LoadSentinelConfig(path)
			if err != nil {
				return err
			}
			if len(cfg.Monitors) == 0 {
				return fmt.Errorf("sentinel: config declares no monitored masters")
			}
			mon := cfg.Monitors[0]

			log := logrus.New()
			if lvl, err := logrus.ParseLevel(logLevel); err == nil {
				log.SetLevel(lvl)
			}

			sc := sentinel.Config{
				MasterName:      mon.Name,
				MasterHost:      mon.Host,
				MasterPort:      mon.Port,
				Quorum:          mon.Quorum,
				DownAfterMillis: mon.DownAfterMillis,
				FailoverTimeout: time.Duration(mon.DownAfterMillis) * time.Millisecond * 6,
				ListenAddr:      net.JoinHostPort(cfg.IP, fmt.Sprint(cfg.Port)),
				PeerAddrs:       cfg.PeerAddrs,
			}

			s := sentinel.NewSentinel(sc, log)
			s.Start()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down sentinel")
				s.Stop()
				os.Exit(0)
			}()

			log.WithFields(logrus.Fields{"master": mon.Name, "quorum": mon.Quorum}).Info("sentinel monitoring")
			return s.Serve(net.JoinHostPort(cfg.IP, fmt.Sprint(cfg.Port)))
		},
	}
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
