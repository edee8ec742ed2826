package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/doctalk/pkg/errors"
)

type detectOptions struct {
	docID string
	file  string
}

func newDetectCmd() *cobra.Command {
	opts := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect [text...]",
		Short: "Detect clinical spans in one document",
		Long: "Detect clinical spans in one document.  The text comes from the arguments,\n" +
			"from --file, or from stdin when neither is given.",
		Example: `  doctalk detect --doc-id note-17 "Patient has myocardial infarction (MI)."
  doctalk detect -o table --file note.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "document identifier for acronym memory")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the document from a file (- for stdin)")
	return cmd
}

func runDetect(cmd *cobra.Command, opts *detectOptions, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	text, err := readDocument(cmd, opts.file, args)
	if err != nil {
		return err
	}

	return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
		d, err := r.buildDetector(setupCtx, false)
		if err != nil {
			return err
		}
		spans, err := d.Detect(cmd.Context(), text, opts.docID)
		if err != nil {
			return err
		}
		return PrintResult(cmd, spanTable(spans))
	})
}

func readDocument(cmd *cobra.Command, file string, args []string) (string, error) {
	if file != "" && len(args) > 0 {
		return "", errors.InvalidParam("--file and text arguments are mutually exclusive")
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var r io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open document").WithDetail("path=" + file)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read document")
	}
	return string(data), nil
}
