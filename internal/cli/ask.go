// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/gemtalk/internal/session"
)

// maxStdinPrompt caps how much piped input is read as a prompt.
const maxStdinPrompt = 1 << 20

type askOptions struct {
	cont   bool
	asJSON bool
	raw    bool
}

// askResult is the --json output of ask.
type askResult struct {
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	Reply          string    `json:"reply,omitempty"`
	State          string    `json:"state"`
	Error          *askError `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

type askError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	ao := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [PROMPT...]",
		Short: "Ask a single question and print the reply",
		Long: `Ask a single question and print the reply.

The prompt is taken from the arguments. Piped input is read as the prompt
when no arguments are given, and appended to the prompt otherwise:

  gemtalk ask "What is a goroutine?"
  git diff | gemtalk ask "Review this change"

Each ask starts a new conversation unless --continue is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, ao, args)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&ao.cont, "continue", "c", false, "continue the active conversation")
	f.BoolVar(&ao.asJSON, "json", false, "output as JSON")
	f.BoolVar(&ao.raw, "raw", false, "print the reply without markdown rendering")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *globalOptions, ao *askOptions, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if prompt == "" {
		return usageErrorf("no prompt given: pass it as an argument or pipe it on stdin")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	app, err := openApp(ctx, opts, openOptions{mode: modeSession, stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer app.Close()

	if !ao.cont {
		// Reuse an untouched active conversation.
		if conv, ok := app.Store.Active(); !ok || conv.MessageCount() > 0 {
			app.Controller.NewConversation()
		}
	}

	start := time.Now()
	res := app.Controller.Submit(ctx, prompt)
	app.Controller.ShowAll()

	out := cmd.OutOrStdout()
	if ao.asJSON {
		result := askResult{
			ConversationID: res.ConversationID,
			Model:          app.Config.Model.Name,
			Prompt:         prompt,
			Reply:          res.Reply,
			State:          res.State.String(),
			DurationMs:     time.Since(start).Milliseconds(),
		}
		if res.Err != nil {
			result.Error = &askError{Kind: res.Err.Kind.String(), Message: res.Err.Msg}
		}
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if res.State == session.Succeeded {
		if ao.raw {
			fmt.Fprintln(out, strings.TrimRight(res.Reply, "\n"))
		} else {
			displayResponse(out, res.Reply)
		}
	}

	if res.Err != nil {
		app.Logger.Debug().Str("detail", res.Err.Detail()).Msg("ask failed")
		return res.Err
	}
	return nil
}

// readPrompt joins the arguments with any piped stdin.
func readPrompt(in io.Reader, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if in == nil || isTerminalReader(in) {
		return prompt, nil
	}

	data, err := io.ReadAll(io.LimitReader(in, maxStdinPrompt))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	piped := strings.TrimSpace(string(data))
	switch {
	case piped == "":
		return prompt, nil
	case prompt == "":
		return piped, nil
	default:
		return prompt + "\n\n" + piped, nil
	}
}
