package cmd

import (
	"bufio"
	"fmt"

	"github.com/jpl-au/ragfile"
	"github.com/spf13/cobra"
)

func newSearchCmd(g *globals) *cobra.Command {
	var (
		strategy string
		opts     ragfile.SearchOptions
		limit    int
	)
	c := &cobra.Command{
		Use:   "search <file> <keyword>",
		Short: "Find keyword records by exact key match",
		Long: `Find keyword records whose key matches, across every keyword section
or only --strategy. Matching is case-insensitive unless --case-sensitive.

Example:
  ragfile search docs.ragfile cat`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			matches := r.Search(args[1], opts)
			if strategy != "" {
				sec, err := r.Open(strategy)
				if err != nil {
					return err
				}
				matches = sec.Lookup(args[1], opts)
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()
			n := 0
			for m, err := range matches {
				if err != nil {
					return err
				}
				sec, err := r.Open(m.Strategy)
				if err != nil {
					return err
				}
				if err := writeRecord(w, sec, m.Offset, m.Record, true); err != nil {
					return err
				}
				if n++; limit > 0 && n >= limit {
					break
				}
			}
			if n == 0 {
				return fmt.Errorf("no records match %q", args[1])
			}
			return nil
		},
	}
	c.Flags().StringVarP(&strategy, "strategy", "s", "", "Search only this strategy")
	c.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "Match keys exactly, including case")
	c.Flags().BoolVar(&opts.Prefix, "prefix", false, "Match keys that start with the keyword")
	c.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many matches (0 = all)")
	return c
}
