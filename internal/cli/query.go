package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/webcompat/webcompat-search/internal/config"
	"github.com/webcompat/webcompat-search/internal/ingest"
)

var domainCmd = &cobra.Command{
	Use:   "domain <name>",
	Short: "List indexed issues that mention a domain",
	Long: `List the indexed issues whose extracted domains include name.

Example:
  webcompat-search domain www.google.com`,
	Args: cobra.ExactArgs(1),
	RunE: listDomainIssues,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check Elasticsearch cluster health",
	Long:  `Print the cluster health. Exits non-zero unless the cluster is green.`,
	Args:  cobra.NoArgs,
	RunE:  checkHealth,
}

func init() {
	rootCmd.AddCommand(domainCmd)
	rootCmd.AddCommand(healthCmd)

	domainCmd.Flags().Int("limit", 100, "Maximum number of issues to list")
}

func listDomainIssues(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, logger, err := setup(ctx, (*config.Config).Validate)
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	hits, err := store.Term(ctx, cfg.Elasticsearch.IssuesIndex, ingest.FieldDomains, args[0], limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No issues mention %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATE\tTITLE")
	for _, hit := range hits {
		var doc struct {
			Number int    `json:"number"`
			State  string `json:"state"`
			Title  string `json:"title"`
		}
		if err := hit.Decode(&doc); err != nil {
			logger.Warn().Err(err).Str("id", hit.ID).Msg("Skipping malformed issue document")
			continue
		}
		fmt.Fprintf(w, "#%d\t%s\t%s\n", doc.Number, doc.State, doc.Title)
	}
	return w.Flush()
}

func checkHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup(ctx, (*config.Config).Validate)
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	h, err := store.Health(ctx)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), "Cluster unreachable: %v", err)
		return err
	}

	line := fmt.Sprintf("Cluster %s is %s (%d nodes, %d active shards)", h.ClusterName, h.Status, h.NumberOfNodes, h.ActiveShards)
	if !h.Green() {
		printStatus(cmd.OutOrStdout(), false, "%s", line)
		return fmt.Errorf("cluster status is %s", h.Status)
	}
	printStatus(cmd.OutOrStdout(), true, "%s", line)
	return nil
}
