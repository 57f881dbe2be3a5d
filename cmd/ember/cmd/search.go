package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
	"github.com/emberdb/ember/internal/errkind"
)

// searchOptions holds the CLI's flags for `ember search`. The query-DSL
// grammar itself (field:term, phrase, range, boolean prefixes) is a
// caller concern, not the core engine's (spec §1 Non-goals) — this
// command only exposes the single most common shape, a term query on one
// field, plus an optional vector query fused against it.
type searchOptions struct {
	field       string
	term        string
	vectorField string
	vector      string
	filter      []string
	limit       int
	hydrate     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a lexical, vector, or hybrid search",
		Long: `Run a search against the index in --dir.

Examples:
  ember search --field title --term fox
  ember search --vector-field embedding --vector 0.1,0.2,0.3
  ember search --field title --term fox --vector-field embedding --vector 0.1,0.2,0.3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.field, "field", "", "field to match --term against")
	cmd.Flags().StringVar(&opts.term, "term", "", "term query value")
	cmd.Flags().StringVar(&opts.vectorField, "vector-field", "", "vector field to query")
	cmd.Flags().StringVar(&opts.vector, "vector", "", "comma-separated query vector, e.g. 0.1,0.2,0.3")
	cmd.Flags().StringArrayVar(&opts.filter, "filter", nil, "equality filter as field=value, repeatable")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "maximum hits to return")
	cmd.Flags().BoolVar(&opts.hydrate, "hydrate", false, "include the full stored document in each hit")

	return cmd
}

func runSearch(cmd *cobra.Command, opts searchOptions) error {
	if opts.term == "" && opts.vector == "" {
		return errkind.New(errkind.InvalidArgument, "cmd.search", "one of --term or --vector is required")
	}

	req := ember.SearchRequest{Limit: opts.limit, Hydrate: opts.hydrate}

	if opts.term != "" {
		if opts.field == "" {
			return errkind.New(errkind.InvalidArgument, "cmd.search", "--field is required alongside --term")
		}
		req.Query = ember.NewTermQuery(opts.field, opts.term)
	}

	if opts.vector != "" {
		if opts.vectorField == "" {
			return errkind.New(errkind.InvalidArgument, "cmd.search", "--vector-field is required alongside --vector")
		}
		vec, err := parseVector(opts.vector)
		if err != nil {
			return err
		}
		req.VectorField = opts.vectorField
		req.VectorQuery = vec
	}

	if len(opts.filter) > 0 {
		filter, err := parseFilter(opts.filter)
		if err != nil {
			return err
		}
		req.Filter = filter
	}

	e, err := ember.Open(dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Search(req)
	if err != nil {
		return err
	}

	for _, h := range result.Hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%.6f\t%d\t%s\n", h.Score, h.DocID, h.ExternalID)
	}
	return nil
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidArgument, "cmd.search", err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func parseFilter(pairs []string) (map[string]ember.DataValue, error) {
	out := make(map[string]ember.DataValue, len(pairs))
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, errkind.New(errkind.InvalidArgument, "cmd.search", "filter must be field=value: "+p)
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			out[field] = ember.Float64(f)
			continue
		}
		out[field] = ember.Text(raw)
	}
	return out, nil
}
