package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/ratelimit"
)

var askLanguage string

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a question from the command line",
	Long: `Run one message through the same flow as POST /ask and print the reply.

Example:
  multichat ask "What are your business hours?" --language en`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVar(&askLanguage, "language", "", "reply language (default chat.default_language)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.chat.Ask(ctx, chat.Request{
		Message:  args[0],
		Language: askLanguage,
		Identity: ratelimit.UserIdentity("cli"),
	})
	if err != nil {
		var chatErr *chat.Error
		if errors.As(err, &chatErr) {
			return fmt.Errorf("%s (%d): %s", chatErr.Kind, chatErr.Status, chatErr.Message)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	if verbose && len(res.Sources) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nSources:")
		for _, s := range res.Sources {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", s)
		}
	}
	return nil
}
