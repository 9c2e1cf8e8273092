package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/cache"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/engine"
	"github.com/Sternrassler/catalog-sync/pkg/records"
	"github.com/spf13/cobra"
)

func newFeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <file.csv>",
		Short: "Create products from a CSV file",
		Long: `Create one product per CSV row.

Recognised columns: Name, SKU, Regular price, Description, Type,
Categories (comma separated names) and Images (URLs separated by ",,").
Missing categories are created once before any product is sent.

Examples:
  catalog-sync feed products.csv
  catalog-sync feed products.csv --batch-size 100 --workers 2 --report feed.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := records.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			sum, err := e.Feed(cmd.Context(), recs)
			return a.finish(cmd, sum, err)
		},
	}
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <category>",
		Short: "Remove a category from its products, deleting orphans",
		Long: `Remove a category from every product linked to it.

Products that keep another category are updated; products left without any
category are deleted. The category is deleted last, and only if every
batch succeeded. The category may be given by id or by exact name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			id, err := categoryID(cmd, e, args[0])
			if err != nil {
				return err
			}
			sum, err := e.UnlinkCategory(cmd.Context(), id)
			return a.finish(cmd, sum, err)
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <category>",
		Short: "Delete a category and every product in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			id, err := categoryID(cmd, e, args[0])
			if err != nil {
				return err
			}
			sum, err := e.PurgeCategory(cmd.Context(), id)
			return a.finish(cmd, sum, err)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [file]",
		Short: "Delete products by id",
		Long: `Delete products listed one id per line, read from file or stdin.

Examples:
  catalog-sync delete ids.txt
  printf '101\n102\n' | catalog-sync delete`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := input(cmd, args)
			if err != nil {
				return err
			}
			defer closeFn()

			ids, err := records.ReadIDs(r)
			if err != nil {
				return err
			}
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			sum, err := e.DeleteByID(cmd.Context(), ids)
			return a.finish(cmd, sum, err)
		},
	}
}

func newDetachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detach [file]",
		Short: "Detach categories from individual products",
		Long: `Read lines of "product_id,category_id,..." from file or stdin and remove
the listed categories from each product. Products left without any
category are deleted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := input(cmd, args)
			if err != nil {
				return err
			}
			defer closeFn()

			pairs, err := records.ReadPairs(r)
			if err != nil {
				return err
			}
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			sum, err := e.DetachPairs(cmd.Context(), pairs)
			return a.finish(cmd, sum, err)
		},
	}
}

func newHideCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hide <category>",
		Short: "Hide every product of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.newEngine()
			if err != nil {
				return err
			}
			id, err := categoryID(cmd, e, args[0])
			if err != nil {
				return err
			}
			sum, err := e.HideCategory(cmd.Context(), id)
			return a.finish(cmd, sum, err)
		},
	}
}

func newCategoriesCmd(a *app) *cobra.Command {
	var (
		cached bool
		maxAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the store's categories",
		Long: `List every category as "id<TAB>name".

With --cached and --redis-url the last mirrored snapshot is printed
instead of enumerating the API, unless it is older than --max-age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if cached {
				if a.mirror == nil {
					return errors.New("--cached requires --redis-url")
				}
				snap, err := loadSnapshot(cmd.Context(), a.mirror, cache.SnapshotKey(a.opts.baseURL), maxAge)
				if err == nil {
					a.logger.Info().Dur("age", snap.Age()).Msg("Using mirrored category snapshot")
					return printCategories(out, snapshotCategories(snap))
				}
				if !errors.Is(err, cache.ErrCacheMiss) {
					return err
				}
				a.logger.Info().Msg("No fresh mirrored snapshot, listing from the API")
			}

			e, err := a.newEngine()
			if err != nil {
				return err
			}
			if a.mirror != nil {
				// prefetch refreshes the mirrored snapshot as a side effect
				if err := e.Resolver().Prefetch(cmd.Context()); err != nil {
					return err
				}
				return printCategories(out, snapshotCategories(cache.NewSnapshot(e.Resolver().Snapshot())))
			}

			cats, err := e.Categories(cmd.Context())
			if err != nil {
				return err
			}
			return printCategories(out, cats)
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "print the mirrored snapshot if one exists")
	cmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "oldest mirrored snapshot --cached accepts (0 = any age)")
	return cmd
}

// loadSnapshot loads the mirrored snapshot under key. A snapshot older
// than maxAge counts as a miss.
func loadSnapshot(ctx context.Context, m cache.Mirror, key string, maxAge time.Duration) (*cache.Snapshot, error) {
	snap, err := m.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if snap.IsStale(maxAge) {
		return nil, fmt.Errorf("snapshot is %s old: %w", snap.Age().Round(time.Second), cache.ErrCacheMiss)
	}
	return snap, nil
}

// snapshotCategories lists a snapshot's categories sorted by name.
func snapshotCategories(snap *cache.Snapshot) []catalog.Category {
	cats := make([]catalog.Category, 0, len(snap.Categories))
	for _, name := range snap.Names() {
		cats = append(cats, catalog.Category{ID: snap.Categories[name], Name: name})
	}
	return cats
}

func printCategories(w io.Writer, cats []catalog.Category) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range cats {
		fmt.Fprintf(tw, "%d\t%s\n", c.ID, c.PlainName())
	}
	return tw.Flush()
}

// categoryID accepts a numeric id or an exact category name.
func categoryID(cmd *cobra.Command, e *engine.Engine, arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil && id > 0 {
		return id, nil
	}

	cats, err := e.Categories(cmd.Context())
	if err != nil {
		return 0, err
	}
	for _, c := range cats {
		if c.PlainName() == arg {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("category %q not found", arg)
}

// input opens the file named by args[0], or stdin when no file or "-" is given.
func input(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// finish prints the summary, writes the report and turns failures into a
// non-zero exit.
func (a *app) finish(cmd *cobra.Command, sum *engine.Summary, runErr error) error {
	if sum == nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"%s: created=%d updated=%d hidden=%d deleted=%d failed=%d unknown=%d unresolved=%d skipped=%d",
		sum.Flow, sum.Created(), sum.Updated(), sum.Hidden(), sum.Deleted(),
		sum.Failed(), sum.Unknown(), len(sum.Unresolved), len(sum.Skipped))
	if sum.CategoryDeleted {
		fmt.Fprintf(cmd.OutOrStdout(), " category %d deleted", sum.CategoryID)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if a.opts.report != "" {
		if err := writeReport(a.opts.report, sum); err != nil {
			return errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !sum.OK() {
		return fmt.Errorf("%d of %d batches did not fully succeed", sum.FailedBatches(), len(sum.Outcomes))
	}
	return nil
}

func writeReport(path string, sum *engine.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := sum.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
