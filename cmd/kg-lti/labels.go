package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	kglti "github.com/hardtochooseaname/kg-lti"
)

var labelsJSON bool

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the node labels present in the graph",
	Long: `Connect to Neo4j and list the node labels in use, one per line.
Useful to check connectivity and to pick searchable properties.`,
	RunE: runLabels,
}

func init() {
	labelsCmd.Flags().BoolVar(&labelsJSON, "json", false, "Output labels as a JSON array")
}

func runLabels(cmd *cobra.Command, args []string) error {
	executor, err := newExecutor(cfg.Neo4j)
	if err != nil {
		return fmt.Errorf("failed to create neo4j executor: %w", err)
	}
	defer closeDriver(executor.Close)

	repo := kglti.NewRepository(executor, kglti.WithQueryTimeout(cfg.Projection.QueryTimeout))
	labels, err := repo.Labels(cmd.Context())
	if err != nil {
		return err
	}

	if labelsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(labels)
	}
	for _, label := range labels {
		fmt.Fprintln(cmd.OutOrStdout(), label)
	}
	return nil
}
