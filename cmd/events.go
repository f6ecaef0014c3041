package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aciencia/apiserver/internal/mq"
	"github.com/aciencia/apiserver/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect element change events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log element change events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		events, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if events == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer events.Close()

		err = events.SubscribeElementEvents(ctx, func(_ context.Context, event types.ElementEvent) error {
			logger.Info().
				Str("id", event.ID).
				Str("action", string(event.Action)).
				Str("kind", string(event.Kind)).
				Int("element_id", event.ElementID).
				Str("relation", event.Relation).
				Int("member_id", event.MemberID).
				Time("at", event.At).
				Msg("element event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
