package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/spandetect"
	"github.com/turtacn/doctalk/pkg/errors"
)

const (
	defaultChunkSize = 256
	maxLineBytes     = 16 << 20
)

type batchOptions struct {
	input     string
	output    string
	chunkSize int
}

func newBatchCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Detect spans for a JSON Lines stream of documents",
		Long: "Each input line is {\"doc_id\": \"...\", \"text\": \"...\"}.  Each output line\n" +
			"is {\"doc_id\": \"...\", \"spans\": [...]} in input order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "input JSONL file (- for stdin)")
	cmd.Flags().StringVar(&opts.output, "out", "-", "output JSONL file (- for stdout)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "documents detected per concurrent chunk")
	return cmd
}

func runBatch(cmd *cobra.Command, opts *batchOptions) error {
	if opts.chunkSize < 1 {
		return errors.InvalidParam("--chunk-size must be positive")
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open input").WithDetail("path=" + opts.input)
		}
		defer f.Close()
		in = f
	}
	out := cmd.OutOrStdout()
	if opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBadRequest, "failed to create output").WithDetail("path=" + opts.output)
		}
		defer f.Close()
		out = f
	}

	return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
		d, err := r.buildDetector(setupCtx, true)
		if err != nil {
			return err
		}
		n, err := streamBatch(cmd.Context(), d, in, out, opts.chunkSize)
		if err != nil {
			return err
		}
		r.Logger.Info("batch complete", logging.Int("documents", n))
		return nil
	})
}

// streamBatch reads documents in chunks, detects each chunk concurrently and
// writes results in input order.  It returns the number of documents.
func streamBatch(ctx context.Context, d *spandetect.Detector, in io.Reader, out io.Writer, chunkSize int) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	total, line := 0, 0
	chunk := make([]spandetect.Document, 0, chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		results, err := d.DetectBatch(ctx, chunk)
		if err != nil {
			return err
		}
		for _, res := range results {
			if err := enc.Encode(res); err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to write result")
			}
		}
		total += len(chunk)
		chunk = chunk[:0]
		return w.Flush()
	}

	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc spandetect.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return total, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid input line").WithDetail("line=" + strconv.Itoa(line))
		}
		chunk = append(chunk, doc)
		if len(chunk) == chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read input")
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
