// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "github.com/spf13/cobra"

// NewRootCmd builds the gemtalk command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	co := &chatOptions{}

	root := &cobra.Command{
		Use:   "gemtalk",
		Short: "Chat with Gemini from your terminal",
		Long: `gemtalk is a terminal chat client for Google Gemini and
OpenAI-compatible endpoints. Conversations are kept locally and replies are
revealed with a typewriter effect.

Run without a subcommand to start an interactive chat.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts, co)
		},
	}
	root.SetVersionTemplate("gemtalk {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Reason: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/gemtalk/config.toml)")
	pf.StringVarP(&opts.model, "model", "m", "", "model name, overrides [model] name")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.ephemeral, "ephemeral", false, "keep conversations in memory only")
	root.Flags().BoolVar(&co.plain, "plain", false, "use the line-based REPL instead of the full-screen UI")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newConversationsCmd(opts),
		newConfigCmd(opts),
		newModelsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		displayError(root.ErrOrStderr(), err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// usageArgs converts cobra's argument errors into UsageError.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &UsageError{Reason: err.Error()}
		}
		return nil
	}
}
