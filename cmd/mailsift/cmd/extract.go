package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sysdevcode/mailsift/internal/export"
	"github.com/sysdevcode/mailsift/internal/extract"
	"github.com/sysdevcode/mailsift/internal/oauth"
	"github.com/sysdevcode/mailsift/internal/zoho"
)

var (
	maxMessages   int
	skipDownloads bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Walk the inbox and export deduplicated sender contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd.Context())
	},
}

func runExtract(ctx context.Context) error {
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	mgr := newOAuthManager()
	if err := ensureCredential(ctx, mgr); err != nil {
		return err
	}

	limiter := zoho.NewLimiter(cfg.Rate.RequestsPerMinute, cfg.MinDelay())
	client := zoho.NewClient(mgr, limiter,
		zoho.WithLogger(logger),
		zoho.WithBaseURL(cfg.API.BaseURL),
		zoho.WithMaxRetries(cfg.Rate.MaxRetries))

	var fetcher *extract.Fetcher
	if cfg.Attachments.Download && !skipDownloads {
		fetcher = extract.NewFetcher(client, extract.FetcherOptions{
			Dir:                    cfg.AttachmentsDir(),
			MaxSizeBytes:           cfg.Attachments.MaxSizeBytes,
			AllowedExtensions:      cfg.Attachments.AllowedExtensions,
			MaxConsecutiveFailures: cfg.Attachments.MaxConsecutiveFailures,
		}, logger)
	}

	opts := extract.Options{
		BatchSize:   cfg.Extract.BatchSize,
		MaxMessages: cfg.Extract.MaxMessages,
		BatchDelay:  cfg.BatchDelay(),
	}
	if maxMessages > 0 {
		opts.MaxMessages = maxMessages
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("Extracting up to %d messages (Ctrl-C exports partial results)...\n", opts.MaxMessages)
	}

	result, runErr := extract.New(client, fetcher, opts, logger).Run(ctx)
	if result == nil {
		return runErr
	}

	// Export whatever was aggregated, even after a mid-run failure.
	if err := exportAll(result.Contacts); err != nil {
		return err
	}
	printSummary(result)
	if runErr != nil {
		return runErr
	}

	// Export first, then surface the interruption so the process still
	// exits with the interrupted status.
	if result.Interrupted {
		return ctx.Err()
	}
	return nil
}

// newOAuthManager wires the credential store and token manager from the
// loaded configuration.
func newOAuthManager() *oauth.Manager {
	store := oauth.NewStore(cfg.TokenPath(), logger)
	return oauth.NewManager(
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.RedirectURL,
		oauth.Endpoint(cfg.API.AccountsURL),
		store,
		logger,
	)
}

// ensureCredential obtains a valid access token, running the browser
// authorization flow when no usable stored credential exists.
func ensureCredential(ctx context.Context, mgr *oauth.Manager) error {
	_, err := mgr.Token(ctx)
	if err == nil {
		return nil
	}

	var authErr *oauth.AuthError
	if !errors.As(err, &authErr) {
		return err
	}

	logger.Info("no usable credential, starting authorization flow")
	if err := mgr.Authorize(ctx); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	return nil
}

// exportAll writes the three export formats in parallel.
func exportAll(contacts []*extract.Contact) error {
	base := filepath.Join(cfg.Output.Dir, "zoho_email_contacts_latest")

	var g errgroup.Group
	g.Go(func() error { return export.WriteCSV(base+".csv", contacts) })
	g.Go(func() error { return export.WriteJSON(base+".json", contacts) })
	g.Go(func() error { return export.WriteXLSX(base+".xlsx", contacts) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	fmt.Printf("\nExported %d contacts to %s.{csv,json,xlsx}\n", len(contacts), base)
	return nil
}

// printSummary renders the run totals and a top-senders table.
func printSummary(result *extract.Result) {
	attachments := 0
	for _, c := range result.Contacts {
		attachments += len(c.Attachments)
	}

	fmt.Printf("\nAccount:        %s\n", result.Account.DisplayName)
	fmt.Printf("Processed:      %d messages\n", result.Processed)
	fmt.Printf("Discarded:      %d messages\n", result.Discarded)
	fmt.Printf("Unique senders: %d\n", len(result.Contacts))
	fmt.Printf("Attachments:    %d saved\n", attachments)
	if result.Interrupted {
		fmt.Println("Run interrupted; results above are partial.")
	}

	if len(result.Contacts) == 0 {
		return
	}

	top := result.Contacts
	if len(top) > 10 {
		top = top[:10]
	}

	fmt.Println("\nTop senders:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Email", "Name", "Messages"})
	table.SetBorder(false)
	for _, c := range top {
		table.Append([]string{c.Email, c.Name, strconv.Itoa(c.MessageCount)})
	}
	table.Render()
}

func init() {
	extractCmd.Flags().IntVar(&maxMessages, "max-messages", 0, "override the message ceiling")
	extractCmd.Flags().BoolVar(&skipDownloads, "no-attachments", false, "skip attachment downloads")
	rootCmd.AddCommand(extractCmd)
}
