// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemtalk/internal/config"
	"github.com/jeranaias/gemtalk/internal/ui/chat"
	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

// historyFileName is the REPL input history, kept in the config directory.
const historyFileName = "chat_history"

type chatOptions struct {
	plain bool
}

func newChatCmd(opts *globalOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat.

On a terminal this opens the full-screen interface. With --plain, or when
input or output is redirected, a line-based REPL is used instead.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts, co)
		},
	}
	cmd.Flags().BoolVar(&co.plain, "plain", false, "use the line-based REPL instead of the full-screen UI")
	return cmd
}

func runChat(cmd *cobra.Command, opts *globalOptions, co *chatOptions) error {
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	useTUI := !co.plain && isTerminalReader(in) && isTerminalWriter(out)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := openApp(ctx, opts, openOptions{
		mode:        modeSession,
		fileLogOnly: useTUI,
		stderr:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer app.Close()

	watchConfig(ctx, app)

	if useTUI {
		return runTUI(ctx, app)
	}

	readLine, closeReader := newLineReader(in)
	defer closeReader()

	r := &repl{
		app:      app,
		ctrl:     app.Controller,
		out:      out,
		readLine: readLine,
		tty:      isTerminalWriter(out),
	}
	return r.run(ctx)
}

// watchConfig applies typewriter changes from the config file while a chat
// is open.
func watchConfig(ctx context.Context, app *App) {
	if app.ConfigPath == "" {
		return
	}
	if _, err := os.Stat(filepath.Dir(app.ConfigPath)); err != nil {
		return
	}
	onChange := func(cfg *config.Config) {
		app.Controller.SetRevealDelay(cfg.RevealDelay())
	}
	if err := config.Watch(ctx, app.ConfigPath, onChange, app.Logger); err != nil {
		app.Logger.Debug().Err(err).Msg("config watch disabled")
	}
}

// =============================================================================
// FULL-SCREEN UI
// =============================================================================

func runTUI(ctx context.Context, app *App) error {
	m := chat.New(chat.Options{
		Controller: app.Controller,
		Theme:      styles.NewTheme(),
		ModelName:  app.Config.Model.Name,
	})
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of input after showing prompt.
type lineReader func(prompt string) (string, error)

// newLineReader uses liner on a terminal and a plain scanner otherwise.
func newLineReader(in io.Reader) (lineReader, func()) {
	if !isTerminalReader(in) {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		return func(string) (string, error) {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		}, func() {}
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	var historyPath string
	if dir, err := config.Dir(); err == nil {
		historyPath = filepath.Join(dir, historyFileName)
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	read := func(prompt string) (string, error) {
		s, err := line.Prompt(prompt)
		if err == nil && strings.TrimSpace(s) != "" {
			line.AppendHistory(s)
		}
		return s, err
	}
	closeFn := func() {
		if historyPath != "" {
			if err := os.MkdirAll(filepath.Dir(historyPath), 0o700); err == nil {
				if f, err := os.OpenFile(historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
					line.WriteHistory(f)
					f.Close()
				}
			}
		}
		line.Close()
	}
	return read, closeFn
}
