// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemtalk/internal/export"
	"github.com/jeranaias/gemtalk/internal/model"
)

func newConversationsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "Manage stored conversations",
		Long: `Manage stored conversations.

Conversations are referred to by ID or by any unique ID prefix, as shown
by "gemtalk conversations list".`,
	}
	cmd.AddCommand(
		newConvListCmd(opts),
		newConvShowCmd(opts),
		newConvRenameCmd(opts),
		newConvDeleteCmd(opts),
		newConvClearCmd(opts),
		newConvExportCmd(opts),
	)
	return cmd
}

// withStore opens the App without a backend for the duration of fn.
func withStore(cmd *cobra.Command, opts *globalOptions, fn func(app *App) error) error {
	app, err := openApp(cmd.Context(), opts, openOptions{mode: modeStore, stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// conversationSummary is the JSON shape of one list entry.
type conversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"lastModified"`
	Messages     int       `json:"messages"`
	Active       bool      `json:"active"`
}

func newConvListCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(app *App) error {
				convs := app.Store.List()
				activeID := app.Store.ActiveID()
				out := cmd.OutOrStdout()
				if asJSON {
					list := make([]conversationSummary, len(convs))
					for i, c := range convs {
						list[i] = conversationSummary{
							ID:           c.ID,
							Title:        c.Title,
							LastModified: c.LastModified,
							Messages:     c.MessageCount(),
							Active:       c.ID == activeID,
						}
					}
					return writeJSON(out, list)
				}
				writeConversationList(out, convs, activeID, TerminalWidth())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newConvShowCmd(opts *globalOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(app *App) error {
				conv, err := app.Store.Find(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if raw {
					return writeJSON(out, conv)
				}
				fmt.Fprintln(out, TitleStyle.Render(conv.Title))
				fmt.Fprintln(out, MutedStyle.Render(conv.ID+" · "+conv.LastModified.Local().Format("Jan 2, 2006 15:04")))
				fmt.Fprintln(out)
				writeTranscript(out, conv)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored JSON record")
	return cmd
}

func newConvRenameCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Rename a conversation",
		Args:  usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(app *App) error {
				conv, err := app.Store.Find(args[0])
				if err != nil {
					return err
				}
				title := strings.Join(args[1:], " ")
				if err := app.Store.Rename(conv.ID, title); err != nil {
					return wrapError("conversations", "rename", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Renamed to"), strings.TrimSpace(title))
				return nil
			})
		},
	}
}

func newConvDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(app *App) error {
				conv, err := app.Store.Find(args[0])
				if err != nil {
					return err
				}
				if err := app.Store.Delete(conv.ID); err != nil {
					return wrapError("conversations", "delete", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Deleted"), conv.Title)
				return nil
			})
		},
	}
}

func newConvClearCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(app *App) error {
				out := cmd.OutOrStdout()
				if !yes {
					ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete all %d conversations?", app.Store.Len()))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, MutedStyle.Render("Aborted"))
						return nil
					}
				}
				app.Store.ClearAll()
				if err := app.Store.LastPersistError(); err != nil {
					return wrapError("conversations", "clear", err)
				}
				fmt.Fprintln(out, SuccessStyle.Render("All conversations deleted"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newConvExportCmd(opts *globalOptions) *cobra.Command {
	var (
		format   string
		outDir   string
		open     bool
		noMeta   bool
		noStamps bool
		toStdout bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a conversation to Markdown, JSON or HTML",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			eo := export.DefaultOptions()
			eo.OutputDir = outDir
			eo.OpenAfterExport = open
			eo.IncludeMetadata = !noMeta
			eo.IncludeTimestamps = !noStamps

			exporter, err := export.ForFormat(format, eo)
			if err != nil {
				return &UsageError{Reason: err.Error()}
			}

			return withStore(cmd, opts, func(app *App) error {
				conv, err := app.Store.Find(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if toStdout {
					data, err := exporter.Export(conv)
					if err != nil {
						return wrapError("conversations", "export", err)
					}
					_, err = out.Write(data)
					return err
				}
				path, err := export.ToFile(conv, exporter, eo)
				if err != nil {
					return wrapError("conversations", "export", err)
				}
				fmt.Fprintf(out, "%s %s\n", SuccessStyle.Render("Exported to"), path)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "md", "output format: "+strings.Join(export.Formats, ", "))
	f.StringVarP(&outDir, "out", "o", ".", "output directory")
	f.BoolVar(&open, "open", false, "open the file after exporting")
	f.BoolVar(&noMeta, "no-metadata", false, "omit the metadata header")
	f.BoolVar(&noStamps, "no-timestamps", false, "omit per-message timestamps")
	f.BoolVar(&toStdout, "stdout", false, "write to stdout instead of a file")
	return cmd
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// writeConversationList prints one line per conversation with a marker on
// the active one.
func writeConversationList(w io.Writer, convs []model.Conversation, activeID string, width int) {
	if len(convs) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No conversations yet"))
		return
	}
	const idWidth = 8
	titleWidth := width - idWidth - 24
	if titleWidth < 16 {
		titleWidth = 16
	}
	now := time.Now()
	for _, c := range convs {
		marker := "  "
		if c.ID == activeID {
			marker = "● "
		}
		id := c.ID
		if len(id) > idWidth {
			id = id[:idWidth]
		}
		title := padRight(runewidth.Truncate(c.Title, titleWidth, "…"), titleWidth)
		fmt.Fprintf(w, "%s%s  %s  %s\n",
			marker,
			commandStyle.Render(id),
			title,
			MutedStyle.Render(fmt.Sprintf("%3d msgs  %s", c.MessageCount(), relativeTime(c.LastModified, now))),
		)
	}
}

// writeTranscript prints every message of conv in order.
func writeTranscript(w io.Writer, conv model.Conversation) {
	for i, msg := range conv.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		label := msg.Role.DisplayName()
		style := assistantStyle
		switch {
		case msg.IsError:
			label, style = "Error", ErrorStyle
		case msg.IsUser():
			style = promptStyle
		}
		fmt.Fprintf(w, "%s %s\n", style.Render(label+":"), MutedStyle.Render(msg.Timestamp.Local().Format("15:04:05")))
		fmt.Fprintln(w, strings.TrimRight(msg.Content, "\n"))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on in. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", WarningStyle.Render(question))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// relativeTime formats t relative to now for list views.
func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}
