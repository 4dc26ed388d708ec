package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/hermes/internal/app"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/imap"
	"github.com/ternarybob/hermes/internal/services/results"
	"github.com/ternarybob/hermes/internal/services/sheets"
	"github.com/ternarybob/hermes/internal/services/sources"
)

var runCmd = &cobra.Command{
	Use:   "run <products_source> [emails_source]",
	Short: "Process a batch of emails against a product catalog",
	Long: `Reads the product catalog and a batch of emails, runs every email
through the workflow, and writes the classification, order status and
response tables plus a per-email state dump under the output directory.

Each source is either a CSV path or SHEET_ID#SHEET_NAME. With --imap the
emails come from the configured mailbox instead of an emails source.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBatch,
}

var (
	runOutGsheetID string
	runOutDir      string
	runLimit       int
	runEmailIDs    []string
	runStopOnError bool
	runPDFReport   bool
	runUseIMAP     bool
)

func init() {
	runCmd.Flags().StringVar(&runOutGsheetID, "output-gsheet-id", "", "Mirror the output tables to this Google spreadsheet")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", "./output", "Directory for the output tables and state dumps")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Maximum emails to process (0 = config limit)")
	runCmd.Flags().StringSliceVar(&runEmailIDs, "email-id", nil, "Process only these email ids (repeatable or comma-separated)")
	runCmd.Flags().BoolVar(&runStopOnError, "stop-on-error", false, "Abort the batch after the first failed email")
	runCmd.Flags().BoolVar(&runPDFReport, "pdf-report", false, "Write a PDF summary of the batch")
	runCmd.Flags().BoolVar(&runUseIMAP, "imap", false, "Fetch unread emails from the configured IMAP mailbox")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !runUseIMAP && len(args) < 2 {
		return fmt.Errorf("emails_source argument required unless --imap is set")
	}
	productsSpec, err := sources.ParseSpec(args[0])
	if err != nil {
		return fmt.Errorf("invalid products source: %w", err)
	}

	if runStopOnError {
		config.Workers.StopOnError = true
	}

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.LoadCatalog(ctx, productsSpec); err != nil {
		return err
	}

	var mailbox *imap.Service
	var emails []models.IncomingEmail
	if runUseIMAP {
		mailbox = imap.NewService(config.IMAP, logger)
		if !mailbox.IsConfigured() {
			return fmt.Errorf("--imap requires imap server, username and password in the configuration")
		}
		emails, err = mailbox.FetchUnread(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch mailbox: %w", err)
		}
	} else {
		emailsSpec, err := sources.ParseSpec(args[1])
		if err != nil {
			return fmt.Errorf("invalid emails source: %w", err)
		}
		emails, err = application.Sources.LoadEmails(ctx, emailsSpec)
		if err != nil {
			return err
		}
	}

	emails = sources.FilterByID(emails, runEmailIDs)
	limit := runLimit
	if limit <= 0 {
		limit = config.HermesProcessingLimit
	}
	emails = sources.Limit(emails, limit)

	if len(emails) == 0 {
		logger.Warn().Msg("No emails to process")
		return nil
	}

	runID, states, runErr := application.ProcessEmails(ctx, emails)

	// Land whatever the batch produced even when it was aborted or
	// interrupted; only the results write uses the detached context.
	writeCtx := context.WithoutCancel(ctx)
	writer := results.NewWriter(runOutDir, logger).WithStorage(application.Storage.Workflows())
	gsheetID := runOutGsheetID
	if gsheetID == "" {
		gsheetID = config.OutputSpreadsheetID
	}
	if gsheetID != "" {
		pusher, err := sheets.NewService(writeCtx, logger)
		if err != nil {
			return fmt.Errorf("spreadsheet output requested: %w", err)
		}
		writer = writer.WithSheet(pusher, gsheetID)
	}
	if err := writer.WriteBatch(writeCtx, states); err != nil {
		return err
	}
	if runPDFReport || config.Report.PDF {
		if _, err := writer.WriteReport(states, runID); err != nil {
			logger.Warn().Err(err).Msg("Failed to write PDF report")
		}
	}

	if mailbox != nil {
		for _, state := range states {
			if err := mailbox.MarkProcessed(writeCtx, state.Email.ID); err != nil {
				logger.Warn().Err(err).Str("email_id", state.Email.ID).Msg("Failed to mark email processed")
			}
		}
	}

	failed := 0
	for _, state := range states {
		if state.HasErrors() {
			failed++
		}
	}
	logger.Info().
		Str("run_id", runID).
		Int("processed", len(states)).
		Int("with_errors", failed).
		Str("out_dir", runOutDir).
		Msg("Run complete")

	return runErr
}
