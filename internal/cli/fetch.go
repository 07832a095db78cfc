package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/webcompat/webcompat-search/internal/config"
	"github.com/webcompat/webcompat-search/internal/github"
	"github.com/webcompat/webcompat-search/internal/ingest"
)

var fetchIssuesCmd = &cobra.Command{
	Use:   "fetch-issues",
	Short: "Index issues updated since the last run",
	Long: `Fetch issues from the webcompat tracker and index them.

Without --since, only issues updated at or after the newest updated_at
already in the index are requested. An empty index fetches everything.

Examples:
  webcompat-search fetch-issues
  webcompat-search fetch-issues --state open --since 2024-01-01T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: fetchIssues,
}

var fetchIssuesByRangeCmd = &cobra.Command{
	Use:   "fetch-issues-by-range [START-END]",
	Short: "Index a window of the issue listing",
	Long: `Index the issues at positions [start, end) of the listing ordered by
last update, oldest first. The window is given with --start/--end or as a
single START-END argument.

Examples:
  webcompat-search fetch-issues-by-range --start 0 --end 1000
  webcompat-search fetch-issues-by-range 95-205`,
	Args: cobra.MaximumNArgs(1),
	RunE: fetchIssuesByRange,
}

var lastUpdatedCmd = &cobra.Command{
	Use:   "last-updated",
	Short: "Print the newest updated_at in the issues index",
	Args:  cobra.NoArgs,
	RunE:  lastUpdated,
}

func init() {
	rootCmd.AddCommand(fetchIssuesCmd)
	rootCmd.AddCommand(fetchIssuesByRangeCmd)
	rootCmd.AddCommand(lastUpdatedCmd)

	fetchIssuesCmd.Flags().String("state", github.StateAll, "Issue state to fetch (all, open, closed)")
	fetchIssuesCmd.Flags().String("since", "", "Only fetch issues updated at or after this RFC 3339 time or date")

	fetchIssuesByRangeCmd.Flags().Int("start", 0, "First listing position (inclusive)")
	fetchIssuesByRangeCmd.Flags().Int("end", 0, "Last listing position (exclusive)")
}

func fetchIssues(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, _ := cmd.Flags().GetString("state")
	sinceStr, _ := cmd.Flags().GetString("since")
	since, err := parseSince(sinceStr)
	if err != nil {
		return err
	}

	cfg, logger, err := setup(ctx, (*config.Config).ValidateForIngest)
	if err != nil {
		return err
	}
	pipeline, err := ingestPipeline(cfg, logger)
	if err != nil {
		return err
	}

	stats, err := pipeline.Fetch(ctx, state, since)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), "Fetch failed after %d issues: %v", stats.Indexed, err)
		return err
	}
	printIngestStats(cmd.OutOrStdout(), stats)
	return nil
}

func fetchIssuesByRange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	if len(args) == 1 {
		if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
			return fmt.Errorf("give the range either as an argument or with --start/--end, not both")
		}
		var err error
		if start, end, err = ParseIssueRange(args[0]); err != nil {
			return err
		}
	} else if err := checkRange(start, end); err != nil {
		return fmt.Errorf("invalid range: %w", err)
	}

	cfg, logger, err := setup(ctx, (*config.Config).ValidateForIngest)
	if err != nil {
		return err
	}
	pipeline, err := ingestPipeline(cfg, logger)
	if err != nil {
		return err
	}

	stats, err := pipeline.FetchRange(ctx, start, end)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), "Range [%d, %d) failed after %d issues: %v", start, end, stats.Indexed, err)
		return err
	}
	printIngestStats(cmd.OutOrStdout(), stats)
	return nil
}

func lastUpdated(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup(ctx, (*config.Config).Validate)
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	ts, ok, err := newPipeline(cfg, nil, store, logger).LastUpdated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no issues\n", cfg.Elasticsearch.IssuesIndex)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), ts.UTC().Format(time.RFC3339))
	return nil
}

func ingestPipeline(cfg *config.Config, logger zerolog.Logger) (*ingest.Pipeline, error) {
	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := newGitHubClient(cfg)
	if err != nil {
		return nil, err
	}
	return newPipeline(cfg, ingest.GitHubSource{Client: client}, store, logger), nil
}

// parseSince accepts an RFC 3339 timestamp or a bare date. Empty means
// derive the bound from the index.
func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --since %q: want RFC 3339 time or YYYY-MM-DD", s)
}
