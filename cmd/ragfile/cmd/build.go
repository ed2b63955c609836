package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/jpl-au/ragfile"
	"github.com/jpl-au/ragfile/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// inputRecord is one line of a section's JSONL input. Keyword sections use
// content; embedding sections use vector.
type inputRecord struct {
	Key     string    `json:"key"`
	Content *string   `json:"content"`
	Vector  []float64 `json:"vector"`
}

func newBuildCmd(g *globals) *cobra.Command {
	var manifest, output string
	c := &cobra.Command{
		Use:   "build -c build.yaml",
		Short: "Build a file from a YAML manifest and JSONL inputs",
		Long: `Build a file from a YAML manifest. Each manifest section names a
strategy, its encoding and a JSONL input with one record per line:

  {"key": "cat", "content": "a furry animal"}     keyword sections
  {"key": "emb1", "vector": [0.1, 0.2, 0.3]}      embedding sections

The manifest's logging.level applies unless --log-level is given.

Example:
  ragfile build -c build.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(manifest)
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output = output
			}
			if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
				log, err := newLogger(cfg.Logging.Level)
				if err != nil {
					return err
				}
				g.log = log
			}
			if err := build(g, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d sections to %s\n", len(cfg.Sections), cfg.Output)
			return nil
		},
	}
	c.Flags().StringVarP(&manifest, "config", "c", "build.yaml", "Build manifest")
	c.Flags().StringVarP(&output, "output", "o", "", "Output path (overrides the manifest)")
	return c
}

// build writes the file described by cfg.
func build(g *globals, cfg *config.Config) error {
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	base := g.options()
	opts.Logger, opts.Metrics, opts.Retries = base.Logger, base.Metrics, base.Retries

	w, err := ragfile.Create(cfg.Output, opts)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, s := range cfg.Sections {
		sc, err := s.SectionConfig()
		if err != nil {
			return err
		}
		n, err := writeSection(w, s, sc, opts.Endianness)
		if err != nil {
			return fmt.Errorf("section %q: %w", s.Name, err)
		}
		g.log.Info("section built", zap.String("strategy", s.Name), zap.Int("records", n))
	}
	return w.Finalize()
}

// writeSection streams the JSONL input of s into a new section.
func writeSection(w *ragfile.Writer, s config.Section, sc ragfile.SectionConfig, e ragfile.Endianness) (int, error) {
	f, err := os.Open(s.Input)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sw, err := w.BeginSection(s.Name, sc)
	if err != nil {
		return 0, err
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	n := 0
	for {
		var in inputRecord
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return n, fmt.Errorf("%s: record %d: %w", s.Input, n, err)
		}
		content, err := recordContent(in, sc, e)
		if err != nil {
			return n, fmt.Errorf("%s: record %d: %w", s.Input, n, err)
		}
		if err := sw.Add(in.Key, content); err != nil {
			return n, err
		}
		n++
	}
	return n, sw.Close()
}

// recordContent returns the encoded content of one input record.
func recordContent(in inputRecord, sc ragfile.SectionConfig, e ragfile.Endianness) ([]byte, error) {
	if sc.Kind == ragfile.KindEmbedding {
		if in.Vector == nil {
			return nil, errors.New("embedding record has no vector")
		}
		return ragfile.EncodeVector(in.Vector, sc.Precision, e)
	}
	if in.Content == nil {
		return nil, errors.New("keyword record has no content")
	}
	return []byte(*in.Content), nil
}
