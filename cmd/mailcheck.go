package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/mailbox"
	"github.com/revosurge/adwatch/internal/observability"
)

var mailcheckCmd = &cobra.Command{
	Use:   "mailcheck",
	Short: "Verify mailbox connectivity and credentials",
	Long: `Dial the configured IMAP server and log in, without reading any
message. Run this before registration flows to distinguish "mailbox
unreachable" from "verification code never arrived".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Mailbox.Configured() {
			return fmt.Errorf("mailbox is not configured (set ADWATCH_MAILBOX_ADDRESS and ADWATCH_MAILBOX_APP_PASSWORD)")
		}
		logger := observability.GetLogger()
		store := mailbox.NewIMAPStore(cfg.Mailbox, logger)
		if err := store.CheckConnection(cmd.Context()); err != nil {
			return fmt.Errorf("mailbox check failed: %w", err)
		}
		logger.Info("Mailbox connection OK",
			zap.String("server", cfg.Mailbox.Server),
			zap.String("address", cfg.Mailbox.Address))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailcheckCmd)
}
