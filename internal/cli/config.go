package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand prints the effective configuration as YAML.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "config",
		Short:        "Print the effective configuration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			cfg.DataHive.APIMKey = redact(cfg.DataHive.APIMKey)
			cfg.Postgres.DSN = redact(cfg.Postgres.DSN)
			cfg.Redis.URL = redact(cfg.Redis.URL)

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
