// Command chat is the terminal client for MarefaSource AI. It answers locally
// from canned responses or, with --remote, through the chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/client"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

var (
	remoteURL     string
	usePerplexity bool
	typingDelay   time.Duration
	startMode     string
	logFile       string
	askQuestion   string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with MarefaSource AI from the terminal",
	Long: `chat is a terminal client for MarefaSource AI.

Without --remote it answers from built-in demo responses. With --remote it
sends each question to a running chat server.

Inside the chat, type /help for the available commands.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		catalog, err := client.DefaultCatalog()
		if err != nil {
			return err
		}

		directory := client.DemoDirectory()
		ctrl := client.NewController(catalog, directory, client.DemoHistory(directory))
		if err := ctrl.SelectMode(startMode); err != nil {
			return fmt.Errorf("unknown mode %q (available: %s)", startMode, strings.Join(catalog.Names(), ", "))
		}
		ctrl.Notices()

		var responder client.Responder = client.NewLocalResponder(catalog)
		if remoteURL != "" {
			responder = client.NewRemoteResponder(remoteURL, usePerplexity, 0)
		}

		logger.Info("chat client starting",
			zap.String("mode", startMode),
			zap.Bool("remote", remoteURL != ""),
			zap.Bool("perplexity", usePerplexity),
		)

		if askQuestion != "" {
			return askOnce(cmd.Context(), ctrl, responder)
		}

		program := tea.NewProgram(newModel(ctrl, responder, typingDelay, logger), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err = program.Run()
		return err
	},
}

func init() {
	rootCmd.Flags().StringVar(&remoteURL, "remote", "", "chat server base URL, e.g. http://localhost:3000")
	rootCmd.Flags().BoolVar(&usePerplexity, "perplexity", false, "ask the server to use the Perplexity provider")
	rootCmd.Flags().DurationVar(&typingDelay, "typing-delay", client.DefaultTypingDelay, "delay between revealed characters (0 disables)")
	rootCmd.Flags().StringVar(&startMode, "mode", "ahkam", "initial mode: ahkam, research or scholar")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	rootCmd.Flags().StringVar(&askQuestion, "ask", "", "ask one question, print the answer and exit")
}

func buildLogger() (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewNop(), nil
	}
	return utils.NewFileLogger(utils.LoggingConfig{
		Level:       "debug",
		Encoding:    "json",
		ServiceName: "marefa-chat-client",
	}, logFile)
}

// askOnce runs a single turn and types the answer to stdout.
func askOnce(ctx context.Context, ctrl *client.Controller, responder client.Responder) error {
	turn, ok := ctrl.Submit(askQuestion)
	if !ok {
		if notices := ctrl.Notices(); len(notices) > 0 {
			return errors.New(notices[len(notices)-1].Text)
		}
		return errors.New("question must not be empty")
	}

	answer, err := responder.Respond(ctx, turn.Mode, turn.Question)
	if err != nil {
		ctrl.Fail(turn, err)
		return err
	}

	printed := 0
	reveal := client.NewReveal(answer, typingDelay)
	if err := reveal.Run(ctx, func(text string) {
		fmt.Print(text[printed:])
		printed = len(text)
	}); err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()

	ctrl.Complete(turn, answer)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
