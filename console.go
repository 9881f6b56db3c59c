package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	gorilla "github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/websocket"
)

var consoleURL string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with a running relay from the terminal",
	Long: `Connect to the relay's WebSocket endpoint and chat from stdin.

Lines starting with a slash are commands (/image, /story, /speak, /clear, /help).
Type 'exit' to quit.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleURL, "url", "ws://localhost:8080/ws", "relay WebSocket endpoint")
}

var (
	sessionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	editStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

func runConsole(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, consoleURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", consoleURL, err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	go func() {
		defer stop()
		for {
			var ev websocket.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					fmt.Fprintln(out, errorStyle.Render("connection closed: "+err.Error()))
				}
				return
			}
			fmt.Fprintln(out, renderEvent(ev))
		}
	}()

	return readPrompts(ctx, cmd.InOrStdin(), out, func(text string) error {
		return conn.WriteJSON(websocket.Event{Type: websocket.EventPrompt, Text: text})
	})
}

// readPrompts forwards stdin lines until EOF, "exit" or ctx cancellation.
func readPrompts(ctx context.Context, in io.Reader, out io.Writer, send func(string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, dimStyle.Render("Enter prompts (type 'exit' to quit):"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "exit" {
				return nil
			}
			if err := send(text); err != nil {
				return fmt.Errorf("failed to send prompt: %w", err)
			}
		}
	}
}

func renderEvent(ev websocket.Event) string {
	tag := fmt.Sprintf("#%d", ev.ID)
	switch ev.Type {
	case websocket.EventSession:
		return sessionStyle.Render("connected as " + ev.Conversation)
	case websocket.EventMessage:
		return promptStyle.Render(tag) + " " + botStyle.Render(ev.Text)
	case websocket.EventEdit:
		return editStyle.Render(tag+" ✎") + " " + botStyle.Render(ev.Text)
	case websocket.EventDelete:
		return dimStyle.Render(tag + " removed")
	case websocket.EventPhoto:
		return promptStyle.Render(tag) + " " + botStyle.Render("🖼 "+ev.URL)
	case websocket.EventVoice:
		return promptStyle.Render(tag) + " " + dimStyle.Render(fmt.Sprintf("voice note (%d bytes)", len(ev.Audio)))
	case websocket.EventError:
		return errorStyle.Render(ev.Text)
	default:
		return dimStyle.Render("unknown event " + ev.Type)
	}
}
