package commands

import (
	"github.com/spf13/cobra"

	"github.com/viant/docvec"
	"github.com/viant/docvec/vector"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Create and list collections",
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection, or add indexed fields to an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dim, _ := cmd.Flags().GetInt("dimension")
		fields, _ := cmd.Flags().GetStringSlice("field")
		metricName, _ := cmd.Flags().GetString("metric")
		metric, err := vector.ParseMetric(metricName)
		if err != nil {
			return err
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if dim == 0 {
			dim = env.Embedder.Dimension()
		}
		c, err := env.Store.CreateCollection(cmd.Context(), docvec.Schema{
			Name:          args[0],
			Dimension:     dim,
			Metric:        metric,
			IndexedFields: fields,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, c.Schema())
	},
}

type collectionInfo struct {
	docvec.Schema
	Documents int `json:"documents"`
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with their schema and document count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		infos := []collectionInfo{}
		for _, name := range env.Store.Collections() {
			c, err := env.Store.Collection(name)
			if err != nil {
				return err
			}
			infos = append(infos, collectionInfo{Schema: c.Schema(), Documents: c.Count()})
		}
		return printJSON(cmd, infos)
	},
}

func init() {
	collectionsCreateCmd.Flags().Int("dimension", 0, "vector dimension (defaults to the embedder dimension)")
	collectionsCreateCmd.Flags().StringSlice("field", nil, "payload field to index for filtering (repeatable)")
	collectionsCreateCmd.Flags().String("metric", "cosine", "similarity metric")

	collectionsCmd.AddCommand(collectionsCreateCmd, collectionsListCmd)
	rootCmd.AddCommand(collectionsCmd)
}
