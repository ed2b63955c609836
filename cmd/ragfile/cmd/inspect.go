package cmd

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jpl-au/ragfile"
	"github.com/spf13/cobra"
)

func newInspectCmd(g *globals) *cobra.Command {
	var digest string
	c := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the header, index table and section summaries as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts ragfile.VerifyOptions
			if digest != "" {
				alg, err := ragfile.ParseDigestAlgorithm(digest)
				if err != nil {
					return err
				}
				opts.Digest = alg
			}

			r, err := openReader(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			desc, err := r.Describe(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	c.Flags().StringVar(&digest, "digest", "xxh3", "Section digest (xxh3, fnv1a, blake2b, or empty to skip)")
	return c
}
