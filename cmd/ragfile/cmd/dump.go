package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/jpl-au/ragfile"
	"github.com/spf13/cobra"
)

// outputRecord is one line of dump and search output.
type outputRecord struct {
	Strategy string    `json:"strategy,omitempty"`
	Offset   int64     `json:"offset"`
	Key      string    `json:"key"`
	Content  *string   `json:"content,omitempty"`
	Vector   []float64 `json:"vector,omitempty"`
}

func newDumpCmd(g *globals) *cobra.Command {
	var (
		limit int
		raw   bool
	)
	c := &cobra.Command{
		Use:   "dump <file> <strategy>",
		Short: "Print a section's records as JSONL",
		Long: `Print a section's records, one JSON object per line. Embedding
content is decoded to a vector at the section's precision.

With --raw the section's bytes, preamble and padding included, are printed
as a hex dump with offsets relative to the section start. This works for
section kinds that cannot be decoded.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			sec, err := r.Open(args[1])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()

			if raw {
				return hexDump(w, sec)
			}
			c := sec.Cursor()
			for n := 0; (limit <= 0 || n < limit) && c.Next(); n++ {
				if err := writeRecord(w, sec, c.Offset(), c.Record(), false); err != nil {
					return err
				}
			}
			return c.Err()
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many records (0 = all)")
	c.Flags().BoolVar(&raw, "raw", false, "Hex dump the section bytes instead of decoding records")
	return c
}

// hexDump writes the section's bytes in hexdump -C layout.
func hexDump(w io.Writer, sec *ragfile.Section) error {
	fmt.Fprintf(w, "# %s [%d,%d)\n", sec.Name(), sec.Range().Start, sec.Range().End)
	d := hex.Dumper(w)
	if _, err := io.Copy(d, sec.Raw()); err != nil {
		return err
	}
	return d.Close()
}

// writeRecord encodes one record as a JSON line.
func writeRecord(w io.Writer, sec *ragfile.Section, off int64, rec ragfile.Record, withStrategy bool) error {
	out := outputRecord{Offset: off, Key: rec.Key}
	if withStrategy {
		out.Strategy = sec.Name()
	}
	if sec.Kind() == ragfile.KindEmbedding {
		v, err := sec.Vector(rec)
		if err != nil {
			return err
		}
		out.Vector = v
	} else {
		s := string(rec.Content)
		out.Content = &s
	}
	line, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(line))
	return err
}
