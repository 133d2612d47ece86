// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/session"
)

// replPrompt stays unstyled: liner measures the prompt width itself.
const replPrompt = "you> "

// repl is the line-based chat loop.
type repl struct {
	app      *App
	ctrl     *session.Controller
	out      io.Writer
	readLine lineReader
	tty      bool
}

// slashCommand is one REPL command.
type slashCommand struct {
	name  string
	args  string
	usage string
	run   func(r *repl, arg string) (quit bool, err error)
}

var slashCommands []slashCommand

func init() {
	slashCommands = []slashCommand{
		{name: "/help", usage: "show this help", run: (*repl).cmdHelp},
		{name: "/new", usage: "start a new conversation", run: (*repl).cmdNew},
		{name: "/list", usage: "list conversations", run: (*repl).cmdList},
		{name: "/open", args: "ID", usage: "switch to a conversation (ID or unique prefix)", run: (*repl).cmdOpen},
		{name: "/rename", args: "TITLE", usage: "rename the current conversation", run: (*repl).cmdRename},
		{name: "/delete", args: "[ID]", usage: "delete a conversation (default: current)", run: (*repl).cmdDelete},
		{name: "/clear", usage: "delete all conversations", run: (*repl).cmdClear},
		{name: "/history", usage: "print the current conversation", run: (*repl).cmdHistory},
		{name: "/model", usage: "show the model in use", run: (*repl).cmdModel},
		{name: "/status", usage: "show session status", run: (*repl).cmdStatus},
		{name: "/quit", usage: "exit (also /exit, Ctrl+D)", run: (*repl).cmdQuit},
	}
}

func lookupCommand(name string) (slashCommand, bool) {
	if name == "/exit" {
		name = "/quit"
	}
	for _, c := range slashCommands {
		if c.name == name {
			return c, true
		}
	}
	return slashCommand{}, false
}

// =============================================================================
// LOOP
// =============================================================================

func (r *repl) run(ctx context.Context) error {
	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.readLine(replPrompt)
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(r.out, MutedStyle.Render("(type /quit or press Ctrl+D to exit)"))
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, "/"):
			quit, err := r.dispatch(line)
			if err != nil {
				displayError(r.out, err)
			}
			if quit {
				return nil
			}
		default:
			r.send(ctx, line)
		}
	}
}

func (r *repl) dispatch(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	c, ok := lookupCommand(strings.ToLower(name))
	if !ok {
		return false, usageErrorf("unknown command %s (try /help)", name)
	}
	return c.run(r, strings.TrimSpace(arg))
}

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("gemtalk")+" "+MutedStyle.Render(r.app.Config.Model.Name))
	if conv, ok := r.app.Store.Active(); ok && conv.MessageCount() > 0 {
		fmt.Fprintf(r.out, "%s %s\n", MutedStyle.Render("Continuing:"), conv.Title)
	}
	fmt.Fprintln(r.out, MutedStyle.Render("Type /help for commands. Ctrl+C cancels a request or skips the reveal."))
	fmt.Fprintln(r.out)
}

// =============================================================================
// SENDING
// =============================================================================

// send submits prompt and prints the reply as it is revealed. Interrupts
// cancel the request while it runs and skip the reveal afterwards.
func (r *repl) send(ctx context.Context, prompt string) {
	reqCtx, stop := context.WithCancel(ctx)
	defer stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-sigs:
				if !r.ctrl.Cancel() {
					r.ctrl.ShowAll()
				}
			case <-reqCtx.Done():
				return
			}
		}
	}()

	if r.tty {
		fmt.Fprint(r.out, MutedStyle.Render(session.ThinkingText))
	}
	out := r.ctrl.Submit(reqCtx, prompt)
	if r.tty {
		fmt.Fprint(r.out, "\r\033[K")
	}

	switch out.State {
	case session.Succeeded:
		fmt.Fprintln(r.out, assistantStyle.Render(model.RoleAssistant.DisplayName()+":"))
		r.follow(reqCtx, out.Reply)
		fmt.Fprintln(r.out)
	case session.Cancelled:
		fmt.Fprintln(r.out, WarningStyle.Render(out.Err.Error()))
	default:
		displayError(r.out, out.Err)
	}
}

// follow prints the revealed text as it grows until the reveal ends.
func (r *repl) follow(ctx context.Context, reply string) {
	printed := 0
	for {
		st := r.ctrl.State()
		text := st.RevealedText
		if len(text) > printed && strings.HasPrefix(reply, text) {
			fmt.Fprint(r.out, text[printed:])
			printed = len(text)
		}
		if !st.Revealing {
			break
		}
		select {
		case <-r.ctrl.Changes():
		case <-ctx.Done():
			r.ctrl.ShowAll()
		}
	}
	if printed < len(reply) {
		fmt.Fprint(r.out, reply[printed:])
	}
	if !strings.HasSuffix(reply, "\n") {
		fmt.Fprintln(r.out)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (r *repl) cmdHelp(string) (bool, error) {
	fmt.Fprintln(r.out, SectionStyle.Render("Commands"))
	for _, c := range slashCommands {
		name := c.name
		if c.args != "" {
			name += " " + c.args
		}
		fmt.Fprintf(r.out, "  %s %s\n", commandStyle.Render(padRight(name, 16)), c.usage)
	}
	return false, nil
}

func (r *repl) cmdNew(string) (bool, error) {
	r.ctrl.NewConversation()
	fmt.Fprintln(r.out, SuccessStyle.Render("Started a new conversation"))
	return false, nil
}

func (r *repl) cmdList(string) (bool, error) {
	writeConversationList(r.out, r.ctrl.Conversations(), r.ctrl.State().ActiveConversationID, TerminalWidth())
	return false, nil
}

func (r *repl) cmdOpen(ref string) (bool, error) {
	if ref == "" {
		return false, usageErrorf("usage: /open ID")
	}
	conv, err := r.app.Store.Find(ref)
	if err != nil {
		return false, err
	}
	if conv, err = r.ctrl.Select(conv.ID); err != nil {
		return false, err
	}
	fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("Opened"), conv.Title)
	if msg, ok := conv.LastMessage(model.RoleAssistant); ok {
		fmt.Fprintln(r.out, assistantStyle.Render(model.RoleAssistant.DisplayName()+":"))
		fmt.Fprintln(r.out, msg.Content)
	}
	return false, nil
}

func (r *repl) cmdRename(title string) (bool, error) {
	id := r.ctrl.State().ActiveConversationID
	if id == "" {
		return false, usageErrorf("no active conversation")
	}
	if err := r.ctrl.Rename(id, title); err != nil {
		return false, err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Renamed"))
	return false, nil
}

func (r *repl) cmdDelete(ref string) (bool, error) {
	id := r.ctrl.State().ActiveConversationID
	if ref != "" {
		conv, err := r.app.Store.Find(ref)
		if err != nil {
			return false, err
		}
		id = conv.ID
	}
	if id == "" {
		return false, usageErrorf("no conversation to delete")
	}
	if err := r.ctrl.Delete(id); err != nil {
		return false, err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Conversation deleted"))
	return false, nil
}

func (r *repl) cmdClear(string) (bool, error) {
	r.ctrl.ClearAll()
	fmt.Fprintln(r.out, SuccessStyle.Render("All conversations deleted"))
	return false, nil
}

func (r *repl) cmdHistory(string) (bool, error) {
	st := r.ctrl.State()
	if st.Conversation.MessageCount() == 0 {
		fmt.Fprintln(r.out, MutedStyle.Render("No messages yet"))
		return false, nil
	}
	writeTranscript(r.out, st.Conversation)
	return false, nil
}

func (r *repl) cmdModel(string) (bool, error) {
	cfg := r.app.Config
	fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Provider"), ValueStyle.Render(cfg.Model.Provider))
	fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Model"), ValueStyle.Render(cfg.Model.Name))
	if info, ok := model.LookupModel(cfg.Model.Name); ok && info.Description != "" {
		fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("About"), MutedStyle.Render(info.Description))
	}
	return false, nil
}

func (r *repl) cmdStatus(string) (bool, error) {
	st := r.ctrl.State()
	stats := r.app.Metrics.Stats()

	title := model.UntitledTitle
	if st.Conversation.ID != "" {
		title = st.Conversation.Title
	}
	fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Conversation"), ValueStyle.Render(title))
	fmt.Fprintf(r.out, "%s%d\n", LabelStyle.Render("Messages"), st.Conversation.MessageCount())
	fmt.Fprintf(r.out, "%s%d\n", LabelStyle.Render("Stored"), r.app.Store.Len())
	fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Last request"), st.Request)
	if st.LastError != nil {
		fmt.Fprintf(r.out, "%s%s (%s)\n", LabelStyle.Render("Last error"), st.LastError.Message, st.LastError.Kind)
	}
	fmt.Fprintf(r.out, "%s%d\n", LabelStyle.Render("Requests"), stats.Requests)
	fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Storage"), r.app.Config.Storage.Backend)
	if err := r.app.Store.LastPersistError(); err != nil {
		fmt.Fprintf(r.out, "%s%s\n", LabelStyle.Render("Storage error"), ErrorStyle.Render(err.Error()))
	}
	return false, nil
}

func (r *repl) cmdQuit(string) (bool, error) {
	return true, nil
}
