package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>...",
		Short: "Decode every section and record, reporting the first error per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, src := range args {
				if err := verifyOne(cmd, g, src); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", src, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", src)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}
}

func verifyOne(cmd *cobra.Command, g *globals, src string) error {
	r, err := openReader(cmd.Context(), g, src)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Verify(cmd.Context())
}
