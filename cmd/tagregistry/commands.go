package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tagregistry/internal/auth"
	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/valkey"
	tagsignal "github.com/nerrad567/gray-logic-tagregistry/internal/signal"
)

// loadConfig loads the configuration named by the --config flag.
func loadConfig(configPath *string) (*config.Config, error) {
	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// newTokenCmd issues bearer tokens for the API. There is no user store:
// operators mint tokens for panels and tooling with this command.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWT.AccessTokenTTL
			}
			token, err := issueToken(cfg.Security.JWT, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. panel-hall")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "role: viewer, editor or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueToken(jwtCfg config.JWTConfig, subject, role string, ttlMinutes int) (string, error) {
	if jwtCfg.Secret == "" {
		return "", errors.New("security.jwt.secret is not set")
	}
	token, err := auth.GenerateAccessToken(subject, auth.Role(role), jwtCfg.Secret, ttlMinutes)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// newMigrateCmd inspects and rolls back schema migrations. Pending
// migrations are applied automatically when the service starts.
func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back database migrations",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openForMigrate(cmd, configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, pending, err := db.GetMigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			printMigrationStatus(cmd.OutOrStdout(), applied, pending)
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openForMigrate(cmd, configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.MigrateDown(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		},
	}

	cmd.AddCommand(status, down)
	return cmd
}

func openForMigrate(cmd *cobra.Command, configPath *string) (*database.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cmd.Context(), database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func printMigrationStatus(w io.Writer, applied []database.MigrationRecord, pending []database.Migration) {
	for _, r := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	fmt.Fprintf(w, "%d applied, %d pending\n", len(applied), len(pending))
}

// newSignalCmd writes live values into the configured signal source. It
// stands in for a runtime during commissioning.
func newSignalCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Write live signal values",
	}

	set := &cobra.Command{
		Use:   "set <device> <tag> <value>",
		Short: "Set the live value of one tag",
		Long: "Set the live value of one tag in the configured signal source.\n" +
			"The value is parsed as JSON when possible and sent as a string otherwise.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			key := device.SignalKey{Device: args[0], Tag: args[1]}
			payload, err := encodeSignalPayload(args[2])
			if err != nil {
				return err
			}
			if err := writeSignal(cmd, cfg, key, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, args[2])
			return nil
		},
	}

	cmd.AddCommand(set)
	return cmd
}

// encodeSignalPayload wraps a command-line value in the {"value": ...}
// payload runtimes publish.
func encodeSignalPayload(raw string) ([]byte, error) {
	value := json.RawMessage(raw)
	if !json.Valid(value) {
		quoted, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		value = quoted
	}

	payload, err := json.Marshal(map[string]json.RawMessage{"value": value})
	if err != nil {
		return nil, err
	}
	if _, err := tagsignal.DecodeValue(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeSignal(cmd *cobra.Command, cfg *config.Config, key device.SignalKey, payload []byte) error {
	if err := device.ValidateName(key.Device); err != nil {
		return err
	}
	if key.Tag == "" || strings.Contains(key.Tag, device.SignalKeySeparator) {
		return fmt.Errorf("invalid tag %q", key.Tag)
	}

	switch cfg.Signals.Source {
	case config.SignalSourceValkey:
		client, err := valkey.Connect(cmd.Context(), cfg.Valkey)
		if err != nil {
			return fmt.Errorf("connecting to Valkey: %w", err)
		}
		defer client.Close()
		return client.WriteSignal(cmd.Context(), key.String(), payload)

	case config.SignalSourceMQTT:
		topic, err := signalTopic(key)
		if err != nil {
			return err
		}
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer client.Close()
		return client.Publish(topic, payload, byte(cfg.MQTT.QoS), true)

	default:
		return fmt.Errorf("signal source %q does not accept writes", cfg.Signals.Source)
	}
}

// signalTopic returns the live value topic for key. Tags may span several
// topic levels; a "+" wildcard cannot be published to.
func signalTopic(key device.SignalKey) (string, error) {
	if strings.Contains(key.Tag, "+") {
		return "", fmt.Errorf("tag %q cannot be addressed by an MQTT topic", key.Tag)
	}
	return mqtt.Topics{}.SignalValue(key.Device, key.Tag), nil
}
