// Package config implements the config command.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/privacy"
)

const redacted = "********"

// Command creates the config command.
func Command() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file, environment and flags are applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(os.Stdout, conf.Setting(), showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords and keys in clear text")

	return cmd
}

func write(w io.Writer, settings *conf.Settings, showSecrets bool) error {
	s := *settings
	if !showSecrets {
		redact(&s)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&s); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}

// redact blanks credentials in a copy of the settings.
func redact(s *conf.Settings) {
	for _, v := range []*string{
		&s.Catalog.MySQL.Password,
		&s.MQTT.Password,
		&s.Archive.SecretAccessKey,
		&s.Telemetry.SentryDSN,
	} {
		if *v != "" {
			*v = redacted
		}
	}
	s.MQTT.Broker = privacy.SanitizeURL(s.MQTT.Broker)
	s.Archive.Endpoint = privacy.SanitizeURL(s.Archive.Endpoint)
}
