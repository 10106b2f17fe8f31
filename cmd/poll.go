package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"ticket-checkout/config"
	"ticket-checkout/internal/services"

	"github.com/spf13/cobra"
)

func newPollCommand(cfg *config.Config) *cobra.Command {
	var (
		baseURL     string
		maxAttempts int
	)

	command := &cobra.Command{
		Use:   "poll-order <order_id>",
		Short: "Poll a running server until an order settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			verifier := services.NewHTTPVerifier(baseURL, cfg.Gateway.Timeout)
			poller := services.NewStatusPoller(verifier, maxAttempts, cfg.PollInterval, logger)

			res := poller.Poll(command.Context(), args[0])
			fmt.Fprintf(command.OutOrStdout(), "%s: %s (%s after %d attempts)\n", res.OrderID, res.Message(), res.Outcome, res.Attempts)

			if res.Outcome == services.PollNotFound || res.Outcome == services.PollCanceled {
				return res.LastErr
			}
			return nil
		},
	}

	command.Flags().StringVar(&baseURL, "url", cfg.PollBaseURL, "base URL of the checkout server")
	command.Flags().IntVar(&maxAttempts, "attempts", cfg.PollMaxAttempts, "maximum verify calls")

	return command
}
