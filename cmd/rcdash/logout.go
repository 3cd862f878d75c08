package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/natsbus"
	"github.com/rcdash/telemetry/internal/session"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored user record",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cliLogger()
			sessionCfg := config.GetSessionConfig()
			natsCfg := config.GetNATSConfig()

			if sessionCfg.Store != "nats" {
				log.Info("Session store keeps no user record between runs, nothing to delete", "store", sessionCfg.Store)
				return nil
			}

			nc, err := natsbus.Connect(natsCfg, log)
			if err != nil {
				return err
			}
			defer nc.Close()

			store, err := openSessionStore(cmd.Context(), sessionCfg, natsCfg, nc)
			if err != nil {
				return err
			}
			if err := session.Logout(cmd.Context(), store, sessionCfg.Key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
