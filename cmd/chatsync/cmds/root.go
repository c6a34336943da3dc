package cmds

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/config"
)

// NewRootCommand builds the CLI. The YAML file at configPath seeds the defaults of
// every command section; a missing file is only an error when explicit is set.
func NewRootCommand(configPath string, explicit bool) (*cobra.Command, error) {
	cfg, err := config.Load(configPath, explicit)
	if err != nil {
		return nil, err
	}

	rootCmd := &cobra.Command{
		Use:          "chatsync",
		Short:        "chatsync is a realtime chat client with a bundled message-log server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitLoggerFromCobra(cmd)
		},
	}
	if err := clay.InitGlazed("chatsync", rootCmd); err != nil {
		return nil, errors.Wrap(err, "init glazed")
	}
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	serveCmd, err := NewServeCommand(cfg)
	if err != nil {
		return nil, err
	}
	chatCmd, err := NewChatCommand(cfg)
	if err != nil {
		return nil, err
	}
	createCmd, err := NewAccountCreateCommand(cfg)
	if err != nil {
		return nil, err
	}

	serveCobraCmd, err := cli.BuildCobraCommand(serveCmd, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	if err != nil {
		return nil, err
	}
	chatCobraCmd, err := cli.BuildCobraCommand(chatCmd, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	if err != nil {
		return nil, err
	}
	rootCmd.AddCommand(serveCobraCmd, chatCobraCmd)

	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts in the server database",
	}
	createCobraCmd, err := cli.BuildCobraCommand(createCmd, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	if err != nil {
		return nil, err
	}
	accountCmd.AddCommand(createCobraCmd)
	rootCmd.AddCommand(accountCmd)

	return rootCmd, nil
}

// getMiddlewares resolves fields as flags > CHATSYNC_* env > config file defaults.
func getMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(config.EnvPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}
