package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/ioresult"
	"github.com/menta2k/image-labeler/pkg/strategy"
)

func convertCommand(a *app) *cobra.Command {
	var images, from, in, to, out string

	cmd := &cobra.Command{
		Use:     "convert",
		Short:   "Convert annotations of an image folder between formats",
		Example: "  image-labeler convert --images photos --from xml --in photos/voc --to yolo --out photos/yolo",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fromFormat, err := a.format(from)
			if err != nil {
				return err
			}
			toFormat, err := strategy.ParseFormatType(to)
			if err != nil {
				return err
			}

			l, err := a.open(ctx, images)
			if err != nil {
				return err
			}
			defer l.Close()

			res, err := l.Import(ctx, fromFormat, in, progressPrinter(cmd.ErrOrStderr(), "import"))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)

			if err := utils.EnsureDir(out); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			res, err = l.Export(ctx, toFormat, out, progressPrinter(cmd.ErrOrStderr(), "export"))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&images, "images", "", "folder holding the images")
	cmd.Flags().StringVar(&from, "from", "", "source format: xml|yolo|json|csv (default from config)")
	cmd.Flags().StringVar(&in, "in", "", "source folder, or CSV file")
	cmd.Flags().StringVar(&to, "to", "", "destination format: xml|yolo|json|csv")
	cmd.Flags().StringVar(&out, "out", "", "destination folder")
	for _, name := range []string{"images", "in", "to", "out"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func predictCommand(a *app) *cobra.Command {
	var images, to, out string
	var minScore float64

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Propose boxes for every image with a vision model and export them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			format, err := a.format(to)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min-score") {
				a.cfg.Prediction.MinScore = minScore
			}

			l, err := a.open(ctx, images)
			if err != nil {
				return err
			}
			defer l.Close()

			res, err := l.Predict(ctx, nil, progressPrinter(cmd.ErrOrStderr(), "predict"))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)
			printCounts(cmd.OutOrStdout(), l.Model().CategoryCounts())

			if err := utils.EnsureDir(out); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			res, err = l.Export(ctx, format, out, progressPrinter(cmd.ErrOrStderr(), "export"))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&images, "images", "", "folder holding the images")
	cmd.Flags().StringVar(&to, "to", "", "output format: xml|yolo|json|csv (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "output folder")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop predictions scoring below this value")
	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func statsCommand(a *app) *cobra.Command {
	var images, from, in string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-category shape counts of an annotation set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			format, err := a.format(from)
			if err != nil {
				return err
			}

			l, err := a.open(ctx, images)
			if err != nil {
				return err
			}
			defer l.Close()

			res, err := l.Import(ctx, format, in, nil)
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)
			printCounts(cmd.OutOrStdout(), l.Model().CategoryCounts())
			return nil
		},
	}

	cmd.Flags().StringVar(&images, "images", "", "folder holding the images")
	cmd.Flags().StringVar(&from, "from", "", "annotation format: xml|yolo|json|csv (default from config)")
	cmd.Flags().StringVar(&in, "in", "", "annotation folder, or CSV file")
	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func modelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models of the prediction server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.labeler()
			if err != nil {
				return err
			}
			defer l.Close()

			models, res, err := l.Models(cmd.Context())
			if err != nil {
				return err
			}
			if res.HasErrors() {
				return res.Err()
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

// format parses name, falling back to the configured default format.
func (a *app) format(name string) (strategy.FormatType, error) {
	if name == "" {
		name = a.cfg.IO.DefaultFormat
	}
	return strategy.ParseFormatType(name)
}

// open creates a labeler and loads the images of dir.
func (a *app) open(ctx context.Context, dir string) (*imagelabeler.Labeler, error) {
	paths, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	l, err := a.labeler()
	if err != nil {
		return nil, err
	}
	res, err := l.Open(ctx, paths, nil)
	if err != nil {
		l.Close()
		return nil, err
	}
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", e.SourceName, e.ErrorDescription)
	}
	return l, nil
}

func progressPrinter(w io.Writer, label string) func(float64) {
	last := -1
	return func(p float64) {
		pct := int(p * 100)
		if pct/10 != last/10 || pct == 100 {
			last = pct
			fmt.Fprintf(w, "\r%s: %3d%%", label, pct)
			if pct == 100 {
				fmt.Fprintln(w)
			}
		}
	}
}

func report(w io.Writer, res ioresult.Result) {
	fmt.Fprintf(w, "%s: %d succeeded, %d failed in %dms\n",
		res.Operation, res.SuccessCount, len(res.Errors), res.ElapsedMillis())
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.SourceName, e.ErrorDescription)
	}
}

func printCounts(w io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSHAPES")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
	}
	tw.Flush()
}
