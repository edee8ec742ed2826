package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitUsage       = 64
	ExitUnavailable = 69
)

// ExitCodeForError maps an error to a process exit code.  Static
// configuration failures exit 2 so scripts can tell them apart from backend
// outages.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.IsConfiguration(err) {
		return ExitConfig
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeBadRequest, errors.ErrCodeValidation,
		errors.ErrCodeInvalidDocument, errors.ErrCodeInvalidAcronym:
		return ExitUsage
	case errors.ErrCodeDatabaseError, errors.ErrCodeCacheError,
		errors.ErrCodeGlossaryUnavailable, errors.ErrCodeAcronymStoreUnavailable,
		errors.ErrCodeLockNotAcquired, errors.ErrCodeNERUnavailable,
		errors.ErrCodeMessagingUnavailable, errors.ErrCodeObjectStoreError:
		return ExitUnavailable
	}
	return ExitFailure
}

// tableProvider is implemented by results with a tabular rendering.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult writes data in the format selected by --output.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := "json"
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}
	if format == "table" {
		if tp, ok := data.(tableProvider); ok {
			return renderTable(cmd.OutOrStdout(), tp.TableHeaders(), tp.TableRows())
		}
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode output")
	}
	return nil
}

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	table.Header(hdr...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to render table")
		}
	}
	if err := table.Render(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to render table")
	}
	return nil
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

// spanTable renders detection output.
type spanTable []clinical.Span

func (t spanTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]clinical.Span(t))
}

func (t spanTable) TableHeaders() []string {
	return []string{"Start", "End", "Surface", "Canonical", "Category", "Negated", "Source", "Why"}
}

func (t spanTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, sp := range t {
		canonical := sp.Canonical
		if sp.IsAmbiguous() {
			canonical = color.YellowString("%s (%s?)", canonical, strings.Join(sp.Ambiguity.Choices, "|"))
		}
		negated := "no"
		if sp.Negated {
			negated = color.RedString("yes")
		}
		rows = append(rows, []string{
			strconv.Itoa(sp.Start),
			strconv.Itoa(sp.End),
			sp.Surface,
			canonical,
			string(sp.Category),
			negated,
			string(sp.Source),
			sp.Why,
		})
	}
	return rows
}
