package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ternarybob/hermes/internal/app"
	"github.com/ternarybob/hermes/internal/services/imap"
	"github.com/ternarybob/hermes/internal/services/results"
	"github.com/ternarybob/hermes/internal/services/sheets"
	"github.com/ternarybob/hermes/internal/services/sources"
)

var watchCmd = &cobra.Command{
	Use:   "watch <products_source>",
	Short: "Poll the IMAP mailbox on a schedule and process new emails",
	Long: `Loads the product catalog once, then polls the configured IMAP
mailbox on the configured schedule. Each unread email runs through the
workflow; outputs land exactly as with run, and processed messages are
marked seen so they are not picked up again.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchOutDir   string
	watchGsheetID string
)

func init() {
	watchCmd.Flags().StringVar(&watchOutDir, "out-dir", "./output", "Directory for the output tables and state dumps")
	watchCmd.Flags().StringVar(&watchGsheetID, "output-gsheet-id", "", "Mirror the output tables to this Google spreadsheet")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	productsSpec, err := sources.ParseSpec(args[0])
	if err != nil {
		return fmt.Errorf("invalid products source: %w", err)
	}

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.LoadCatalog(ctx, productsSpec); err != nil {
		return err
	}

	mailbox := imap.NewService(config.IMAP, logger)
	if !mailbox.IsConfigured() {
		return fmt.Errorf("watch requires imap server, username and password in the configuration")
	}

	writer := results.NewWriter(watchOutDir, logger).WithStorage(application.Storage.Workflows())
	gsheetID := watchGsheetID
	if gsheetID == "" {
		gsheetID = config.OutputSpreadsheetID
	}
	if gsheetID != "" {
		pusher, err := sheets.NewService(ctx, logger)
		if err != nil {
			return fmt.Errorf("spreadsheet output requested: %w", err)
		}
		writer = writer.WithSheet(pusher, gsheetID)
	}

	var mu sync.Mutex
	polling := false
	poll := func() {
		mu.Lock()
		if polling {
			mu.Unlock()
			logger.Warn().Msg("Previous poll still running, skipping")
			return
		}
		polling = true
		mu.Unlock()
		defer func() {
			mu.Lock()
			polling = false
			mu.Unlock()
		}()

		if err := pollOnce(ctx, application, mailbox, writer); err != nil {
			logger.Error().Err(err).Msg("Mailbox poll failed")
		}
	}

	schedule := config.IMAP.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, poll); err != nil {
		return fmt.Errorf("invalid imap schedule %q: %w", schedule, err)
	}

	logger.Info().
		Str("schedule", schedule).
		Str("folder", config.IMAP.Folder).
		Msg("Watching mailbox, press Ctrl+C to stop")

	poll()
	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info().Msg("Watch stopped")
	return nil
}

// pollOnce fetches unread mail, processes it, lands the outputs, and marks
// the processed messages seen.
func pollOnce(ctx context.Context, application *app.App, mailbox *imap.Service, writer *results.Writer) error {
	emails, err := mailbox.FetchUnread(ctx)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		logger.Debug().Msg("No unread emails")
		return nil
	}

	runID, states, runErr := application.ProcessEmails(ctx, emails)
	if runErr != nil && len(states) == 0 {
		return runErr
	}
	if err := writer.WriteBatch(context.WithoutCancel(ctx), states); err != nil {
		return err
	}
	for _, state := range states {
		if err := mailbox.MarkProcessed(ctx, state.Email.ID); err != nil {
			logger.Warn().Err(err).Str("email_id", state.Email.ID).Msg("Failed to mark email processed")
		}
	}
	logger.Info().Str("run_id", runID).Int("processed", len(states)).Msg("Poll complete")
	return runErr
}
