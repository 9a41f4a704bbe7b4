// Starts an http server to federate a blog over ActivityPub, and manages its federation state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkrehbiel/blogfed/server"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blogfed",
		Short: "ActivityPub federation for a blog",
		Long: `Publishes a blog's feed to the fediverse and receives replies, likes,
boosts and follows from remote servers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return telemetry.Init(verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			telemetry.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.json", "config file (json, yaml or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable trace logging")

	rootCmd.AddCommand(
		serveCmd(),
		outboxCmd(),
		followCmd(),
		unfollowCmd(),
		moveCmd(),
		postCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		host     string
		pubCert  string
		privCert string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the federation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.HostName = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if pubCert != "" {
				cfg.Server.Certificate = pubCert
			}
			if privCert != "" {
				cfg.Server.PrivateKey = privCert
			}

			telemetry.Log("starting %s", cfg.URL)
			svc, err := server.NewService(cfg)
			if err != nil {
				return err
			}

			// Startup the service to listen for http requests
			if err := svc.Start(context.Background()); err != nil {
				return err
			}

			// Wait for ^C
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			telemetry.Log("stopping")

			// Shut down the service
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
			defer cancel()
			if err := svc.Stop(ctx); err != nil {
				return err
			}
			telemetry.Log("stopped cleanly")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "this hostname")
	cmd.Flags().StringVar(&pubCert, "cert", "", "public certificate")
	cmd.Flags().StringVar(&privCert, "key", "", "private key")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	return cmd
}
