package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Relay chat prompts to a language model and stream the replies back",
	Long: `chatrelay answers Telegram chats and WebSocket console sessions with replies
from an OpenAI-compatible or Gemini backend.

Available subcommands:
  serve   - Run the relay (Telegram polling or webhook, WebSocket console endpoint)
  console - Talk to a running relay over its WebSocket endpoint`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
