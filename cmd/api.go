package cmd

import (
	"fetchq/internal/api"
	"fetchq/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cmd.Flags().Changed("port") {
				port = cfg.API.Port
			}
			log.Info().Msgf("API server using redis %s, key: %s", cfg.Redis.Addr, cfg.Redis.Key)
			server, err := api.NewServer(cfg)
			if err != nil {
				return err
			}
			server.Run(port)
			return nil
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
