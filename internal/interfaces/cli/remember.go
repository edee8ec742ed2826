package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newRememberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remember DOC_ID ACRONYM CANONICAL",
		Short: "Record the expansion of an acronym for a document",
		Long: "Record the expansion of an acronym for a document.  Later detections of the\n" +
			"document resolve the acronym to CANONICAL, which must be a glossary term.",
		Example: `  doctalk remember note-17 MI "myocardial infarction"`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				d, err := r.buildDetector(setupCtx, false)
				if err != nil {
					return err
				}
				if err := d.Remember(cmd.Context(), args[0], args[1], args[2]); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("%s: %s = %s", args[0], args[1], args[2]))
				return nil
			})
		},
	}
}

// docMap renders a document's acronym mapping.
type docMap map[string]string

func (m docMap) TableHeaders() []string { return []string{"Acronym", "Expansion"} }

func (m docMap) TableRows() [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, m[k]})
	}
	return rows
}

func newDocMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docmap DOC_ID",
		Short: "Show the acronyms stored for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				memory, err := r.acronymMemory(setupCtx)
				if err != nil {
					return err
				}
				m, err := memory.LoadDocMap(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if m == nil {
					m = map[string]string{}
				}
				return PrintResult(cmd, docMap(m))
			})
		},
	}
}
