package cli

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/glossaryfile"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

func newGlossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Inspect and manage the glossary",
	}
	cmd.AddCommand(
		newGlossaryStatsCmd(),
		newGlossaryCheckCmd(),
		newGlossaryImportCmd(),
		newGlossaryExportCmd(),
		newGlossaryPushCmd(),
	)
	return cmd
}

// statsView renders glossary.Stats.
type statsView glossary.Stats

func (s statsView) TableHeaders() []string {
	return []string{"Terms", "Aliases", "Patterns", "Acronyms", "Built At"}
}

func (s statsView) TableRows() [][]string {
	return [][]string{{
		strconv.Itoa(s.Terms),
		strconv.Itoa(s.Aliases),
		strconv.Itoa(s.Patterns),
		strconv.Itoa(s.Acronyms),
		s.BuiltAt.UTC().Format("2006-01-02T15:04:05Z"),
	}}
}

func newGlossaryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the configured glossary and print its counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				idx, err := r.loadIndex(setupCtx, false)
				if err != nil {
					return err
				}
				return PrintResult(cmd, statsView(idx.Snapshot().Stats()))
			})
		},
	}
}

func newGlossaryCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a glossary source",
		Long: "Validate a glossary source.  Duplicate aliases, unknown categories and\n" +
			"malformed files exit with status 2.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				var g *clinical.Glossary
				if file != "" {
					g, err = glossaryfile.NewProvider(file, r.Logger).Load(setupCtx)
				} else {
					var p glossary.Provider
					if p, err = r.glossaryProvider(setupCtx); err == nil {
						g, err = p.Load(setupCtx)
					}
				}
				if err != nil {
					return err
				}
				snap, err := glossary.Build(g, glossary.WithTextNormalization(r.Config.Detect.NormalizeUnicode))
				if err != nil {
					return err
				}
				return PrintResult(cmd, statsView(snap.Stats()))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "check this YAML file instead of the configured source")
	return cmd
}

func newGlossaryImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML glossary into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.InvalidParam("--file is required")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				g, err := glossaryfile.NewProvider(file, r.Logger).Load(setupCtx)
				if err != nil {
					return err
				}
				conn, err := r.openPostgres(setupCtx)
				if err != nil {
					return err
				}
				stats, err := repositories.NewGlossaryRepository(conn, r.Logger).Import(cmd.Context(), g)
				if err != nil {
					return err
				}
				return PrintResult(cmd, stats)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML glossary file")
	return cmd
}

func newGlossaryExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured glossary as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				p, err := r.glossaryProvider(setupCtx)
				if err != nil {
					return err
				}
				g, err := p.Load(setupCtx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return errors.Wrap(err, errors.ErrCodeBadRequest, "failed to create output").WithDetail("path=" + out)
					}
					defer f.Close()
					w = f
				}
				return glossaryfile.Write(w, g)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "output file (- for stdout)")
	return cmd
}

// objectView renders minio.ObjectInfo.
type objectView struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag,omitempty"`
}

func (o objectView) TableHeaders() []string { return []string{"Bucket", "Key", "Size", "ETag"} }

func (o objectView) TableRows() [][]string {
	return [][]string{{o.Bucket, o.Key, strconv.FormatInt(o.Size, 10), o.ETag}}
}

func newGlossaryPushCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Validate a YAML glossary and upload it to object storage",
		Long: "Validate a YAML glossary and upload it to object_store.bucket under\n" +
			"glossary.object.  Invalid glossaries are rejected before upload.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.InvalidParam("--file is required")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), cliCtx, func(setupCtx context.Context, r *Runtime) error {
				g, err := glossaryfile.NewProvider(file, r.Logger).Load(setupCtx)
				if err != nil {
					return err
				}
				if _, err := glossary.Build(g, glossary.WithTextNormalization(r.Config.Detect.NormalizeUnicode)); err != nil {
					return err
				}
				store, err := r.glossaryObject()
				if err != nil {
					return err
				}
				info, err := store.Save(setupCtx, g)
				if err != nil {
					return err
				}
				return PrintResult(cmd, objectView{
					Bucket: r.Config.ObjectStore.Bucket,
					Key:    info.Key,
					Size:   info.Size,
					ETag:   info.ETag,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML glossary file")
	return cmd
}
