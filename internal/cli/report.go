package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webcompat/webcompat-search/internal/config"
	"github.com/webcompat/webcompat-search/internal/dashboard"
	"github.com/webcompat/webcompat-search/internal/fixtures"
)

var reindexDashboardCmd = &cobra.Command{
	Use:   "reindex-dashboard",
	Short: "Rebuild the dashboard reports",
	Long: `Scan every indexed issue, query Bugzilla for linked and partner bugs,
and replace the duped, regression and summary report indices.

Runs must not overlap: each report index is cleared before it is refilled.`,
	Args: cobra.NoArgs,
	RunE: reindexDashboard,
}

var fetchBugzillaBugcountCmd = &cobra.Command{
	Use:   "fetch-bugzilla-bugcount",
	Short: "Index open Bugzilla bug counts for the top sites",
	Args:  cobra.NoArgs,
	RunE:  fetchBugzillaBugcount,
}

func init() {
	rootCmd.AddCommand(reindexDashboardCmd)
	rootCmd.AddCommand(fetchBugzillaBugcountCmd)
}

func reindexDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup(ctx, (*config.Config).ValidateForReport)
	if err != nil {
		return err
	}
	ranks, err := fixtures.WorldRanks(cfg.Fixtures.WorldRanksPath)
	if err != nil {
		return err
	}
	partners, err := fixtures.Partners()
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	indices := dashboard.Indices{
		Duped:      cfg.Reports.DupedIndex,
		Regression: cfg.Reports.RegressionIndex,
		Summary:    cfg.Reports.SummaryIndex,
	}
	for _, name := range []string{indices.Duped, indices.Regression, indices.Summary} {
		if err := store.EnsureIndex(ctx, name); err != nil {
			return err
		}
	}

	assembler := dashboard.NewAssembler(newBugzillaClient(cfg), store, indices, ranks,
		dashboard.PartnerSpecs(partners), dashboard.WithLogger(logger))

	scanner := store.Scan(cfg.Elasticsearch.IssuesIndex, nil)
	defer func() {
		if err := scanner.Close(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear scroll")
		}
	}()

	report, err := assembler.Build(ctx, scanner)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), "Dashboard build failed: %v", err)
		return err
	}
	if err := assembler.Publish(ctx, report); err != nil {
		printFailure(cmd.ErrOrStderr(), "Dashboard publish failed: %v", err)
		return err
	}

	printStatus(cmd.OutOrStdout(), true,
		"Published dashboard: %d top hosts, %d duped bugs, %d partners %s",
		len(report.Open), len(report.Bugzilla), len(report.ByPartner),
		dim(fmt.Sprintf("(run %s, %d scroll pages)", report.RunID, scanner.Pages())))
	return nil
}

func fetchBugzillaBugcount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup(ctx, (*config.Config).Validate)
	if err != nil {
		return err
	}
	sites, err := fixtures.TopSites()
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	if err := store.EnsureIndex(ctx, cfg.Reports.TopSitesCountIndex); err != nil {
		return err
	}

	counts := dashboard.CountSiteBugs(ctx, newBugzillaClient(cfg), sites, logger)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dashboard.PublishSiteBugCounts(ctx, store, cfg.Reports.TopSitesCountIndex, counts); err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), len(counts) == len(sites),
		"Counted open bugs for %d of %d sites", len(counts), len(sites))
	return nil
}
