// Package cmd implements the agentdesk command line interface: an
// interactive chat entrypoint for the copilot pipeline and a review
// surface for pending approval drafts.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := viper.New()
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "agentdesk",
		Short:         "CRM copilot: routed specialist agents with approval-gated writes",
		Long:          "agentdesk runs conversational turns against a fleet of CRM specialist agents. Read tools answer directly; write tools stage drafts that must be approved and applied through the approvals subcommand before any data changes.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cfg, cmd); err != nil {
				return err
			}
			return a.wire(cfg)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default searches ./agentdesk.yaml, $HOME/.agentdesk.yaml)")
	pf.String("db", "", "sqlite database path (empty runs fully in memory)")
	pf.String("provider", "openai", "model provider: openai or anthropic")
	pf.String("model", "", "specialist model name (provider default if empty)")
	pf.String("triage-model", "", "triage model name (provider default if empty)")
	pf.String("org", "", "organization id (required)")
	pf.String("user", "", "user id (required)")
	pf.String("role", "agent", "user role")
	pf.Bool("verbose", false, "log JSON debug output to stderr")

	rootCmd.AddCommand(
		newChatCmd(a),
		newApprovalsCmd(a),
		newSeedCmd(a),
	)

	return rootCmd
}

func loadConfig(cfg *viper.Viper, cmd *cobra.Command) error {
	if err := cfg.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg.SetEnvPrefix("AGENTDESK")
	cfg.AutomaticEnv()

	if path := cfg.GetString("config"); path != "" {
		cfg.SetConfigFile(path)
	} else {
		cfg.SetConfigName("agentdesk")
		cfg.SetConfigType("yaml")
		cfg.AddConfigPath(".")
		cfg.AddConfigPath("$HOME")
	}
	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}
