package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viant/docvec"
	"github.com/viant/docvec/aggregate"
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Similarity search over one or more collections",
	Long: `Embed the query text and return the k most similar documents.

With a single --in collection the results of that collection are printed. With
several, every collection is searched concurrently and the hits are merged by
score; collections that fail are reported next to the hits.

Filter values are parsed as JSON when possible, so --filter year=1999 matches
the number 1999 and --filter sentiment=positive matches the string.

--exact ranks with the vec_cosine SQL function inside SQLite instead of the
in-memory index. It needs sqlite storage and does not support filters.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("in")
		k, _ := cmd.Flags().GetInt("k")
		rawFilters, _ := cmd.Flags().GetStringSlice("filter")
		exact, _ := cmd.Flags().GetBool("exact")
		if len(names) == 0 {
			return errors.New("at least one --in collection is required")
		}
		filter, err := parseFilter(rawFilters)
		if err != nil {
			return err
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		ctx := cmd.Context()

		if exact {
			if env.SQLite == nil {
				return errors.New("--exact requires sqlite storage")
			}
			if len(names) != 1 || len(filter) > 0 {
				return errors.New("--exact supports a single collection without filters")
			}
			c, err := env.Store.Collection(names[0])
			if err != nil {
				return err
			}
			query, err := env.Embedder.Embed(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", docvec.ErrEmbeddingFailure, err)
			}
			scored, err := env.SQLite.Nearest(ctx, names[0], query, k)
			if err != nil {
				return err
			}
			results := make([]docvec.Result, 0, len(scored))
			for _, s := range scored {
				doc, err := c.Get(ctx, s.ID)
				if err != nil {
					return err
				}
				results = append(results, docvec.Result{ID: s.ID, Score: s.Score, Payload: doc.Payload})
			}
			return printJSON(cmd, results)
		}

		searchers := make([]aggregate.Searcher, 0, len(names))
		for _, name := range names {
			c, err := env.Store.Collection(name)
			if err != nil {
				return err
			}
			searchers = append(searchers, c)
		}
		if len(searchers) == 1 {
			results, err := searchers[0].Search(ctx, args[0], k, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		}
		return printJSON(cmd, aggregate.SearchAll(ctx, searchers, args[0], k, filter))
	},
}

// parseFilter turns field=value pairs into a filter. Values that are valid
// JSON scalars keep their JSON type; anything else is a string.
func parseFilter(pairs []string) (docvec.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(docvec.Filter, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: %q is not field=value", docvec.ErrInvalidFilter, pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		switch value.(type) {
		case map[string]any, []any, nil:
			value = raw
		}
		filter[field] = value
	}
	return filter, nil
}

func init() {
	searchCmd.Flags().StringSlice("in", nil, "collection to search (repeatable)")
	searchCmd.Flags().IntP("k", "k", 10, "number of results")
	searchCmd.Flags().StringSlice("filter", nil, "exact-match condition field=value (repeatable, ANDed)")
	searchCmd.Flags().Bool("exact", false, "rank inside SQLite with vec_cosine")
	rootCmd.AddCommand(searchCmd)
}
