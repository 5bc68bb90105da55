package utils

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CommandConfig describes a subcommand and its flags.
type CommandConfig struct {
	Use     string
	Short   string
	Long    string
	Example string

	RunFunc func(cmd *cobra.Command, args []string) error

	Flags map[string]Flag
}

// Flag describes a single command-line flag.
type Flag struct {
	Type        FlagType
	Shorthand   string
	Description string
	Required    bool

	DefaultString   string
	DefaultDuration time.Duration
	DefaultBool     bool
}

// FlagType selects how a Flag is registered with cobra.
type FlagType int

const (
	FlagTypeString FlagType = iota
	FlagTypeDuration
	FlagTypeBool
)

// CreateCommand builds a cobra command from config and registers its flags.
func CreateCommand(config CommandConfig, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     config.Use,
		Short:   config.Short,
		Long:    config.Long,
		Example: config.Example,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.RunFunc != nil {
				return config.RunFunc(cmd, args)
			}
			return nil
		},
	}

	for name, flag := range config.Flags {
		switch flag.Type {
		case FlagTypeString:
			cmd.Flags().StringP(name, flag.Shorthand, flag.DefaultString, flag.Description)
		case FlagTypeDuration:
			cmd.Flags().DurationP(name, flag.Shorthand, flag.DefaultDuration, flag.Description)
		case FlagTypeBool:
			cmd.Flags().BoolP(name, flag.Shorthand, flag.DefaultBool, flag.Description)
		}

		if flag.Required {
			if err := cmd.MarkFlagRequired(name); err != nil {
				log.Error().Err(err).Str("flag", name).Msg("Failed to mark flag as required")
			}
		}
	}

	return cmd
}

// ExecuteCommand runs cmd and exits the process on error.
func ExecuteCommand(cmd *cobra.Command, log zerolog.Logger) {
	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command execution failed")
	}
}
