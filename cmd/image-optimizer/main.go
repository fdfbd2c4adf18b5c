package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/discovery"
	"image-optimizer-go/internal/encoder"
	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/paths"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	inputRoot string
	outputDir string
	workers   int
	verbose   bool
	quiet     bool
	width     int
	natural   int
	role      string
	ensureBkt bool
	version   = "dev"
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-optimizer",
	Short: "Generate WebP, AVIF and resized derivatives for site images",
	Long: `image-optimizer walks an asset directory and writes optimized derivatives
of every JPEG, PNG and WebP image into a mirrored output tree.

Modes:
- bulk: every image under the asset root, WebP plus a re-encoded original
- on-demand: named images only, adding AVIF and a resolution ladder

Failures on individual images are logged and counted; the run continues.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// bulkCmd processes every image under the asset root.
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Optimize every image under the asset root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd)
	},
}

// onDemandCmd processes the named images.
var onDemandCmd = &cobra.Command{
	Use:   "on-demand <path>...",
	Short: "Optimize the given images, relative to the asset root",
	Long: `Optimize only the given images. Paths are relative to the asset root.
Each image gets WebP, AVIF and a re-encoded original, plus one of each per
configured width below its natural width.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			_ = cmd.Usage()
			return discovery.ErrNoPaths
		}
		return runOnDemand(cmd, args)
	},
}

// scanCmd lists what a bulk run would process.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the images a bulk run would process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd)
	},
}

// inspectCmd shows what the pipeline sees in a single file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image metadata and the derivatives each mode would write",
	Long: `Decodes the header of a single image and shows its format, dimensions and
EXIF orientation, followed by the derivatives bulk and on-demand runs would
write for it. This is useful for debugging missing ladder widths.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0])
	},
}

// resolveCmd maps a public URL path to its derivative URLs.
var resolveCmd = &cobra.Command{
	Use:   "resolve <src>",
	Short: "Print the derivative URLs for a public image path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args[0])
	},
}

// publishCmd uploads the output tree to object storage.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the output tree to an S3-compatible bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&inputRoot, "root", "", "asset root directory (default ./public)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "output directory, relative to the asset root unless absolute")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of images processed in parallel (default: CPU count)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	resolveCmd.Flags().IntVar(&width, "width", 0, "ladder width to resolve (0 for full size)")
	resolveCmd.Flags().IntVar(&natural, "natural-width", 0, "natural width of the source, limits the srcset")
	resolveCmd.Flags().StringVar(&role, "role", "gallery", "layout role for the sizes attribute (hero, gallery, thumbnail, profile)")

	publishCmd.Flags().BoolVar(&ensureBkt, "create-bucket", false, "create the bucket if it does not exist")

	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(onDemandCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(publishCmd)
}

// runBulk executes a bulk run and prints the summary.
func runBulk(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p, err := newPipeline(cmd.Context(), cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.runner.RunBulk(cmd.Context())
	p.finish(cmd.Context())
	if err != nil {
		return fmt.Errorf("bulk run failed while %s: %w", p.runner.State(), err)
	}

	printSummary(cmd, p.stats, report)
	return nil
}

// runOnDemand executes an on-demand run for the given paths.
func runOnDemand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p, err := newPipeline(cmd.Context(), cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.runner.RunOnDemand(cmd.Context(), args)
	p.finish(cmd.Context())
	if err != nil {
		return fmt.Errorf("on-demand run failed while %s: %w", p.runner.State(), err)
	}

	printSummary(cmd, p.stats, report)
	return nil
}

// runScan lists the sources a bulk run would pick up.
func runScan(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	root := cfg.GetInputRoot()
	log := setupLogger(cfg, cmd.ErrOrStderr())
	stats := statistics.NewStatistics()

	files, err := discovery.Discover(discovery.Options{
		Root:        root,
		OutputRoot:  cfg.GetOutputRoot(),
		Extensions:  cfg.SupportedExtensions,
		Logger:      log,
		OnDirectory: func(string) { stats.IncrementDirectoriesScanned() },
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	out := cmd.OutOrStdout()
	canonicalRoot, _ := paths.Canonical(root)
	byFormat := make(map[string]int)
	for _, f := range files {
		fmt.Fprintln(out, relOrSelf(canonicalRoot, f))
		if format, ok := encoder.FormatFromPath(f); ok {
			byFormat[format.String()]++
		}
	}

	if !quiet {
		fmt.Fprintf(out, "\n%d images in %d directories", len(files), stats.DirectoriesScanned)
		for _, format := range []encoder.Format{encoder.FormatJPEG, encoder.FormatPNG, encoder.FormatWebP} {
			if n := byFormat[format.String()]; n > 0 {
				fmt.Fprintf(out, ", %s: %d", format, n)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

// runInspect prints metadata and planned derivatives for one file.
func runInspect(cmd *cobra.Command, filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}
	meta, err := extractor.ReadMetadata(data)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", filePath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:        %s\n", filePath)
	fmt.Fprintf(out, "Format:      %s\n", meta.Format)
	fmt.Fprintf(out, "Size:        %s\n", humanize.IBytes(uint64(meta.Size)))
	fmt.Fprintf(out, "Dimensions:  %dx%d\n", meta.Width, meta.Height)
	fmt.Fprintf(out, "Orientation: %d (%s)\n", meta.Orientation, extractor.OrientationName(meta.Orientation))
	if meta.Rotated() {
		fmt.Fprintf(out, "Displayed:   %dx%d\n", meta.DisplayWidth(), meta.DisplayHeight())
	}
	if software, ok := extractor.ReadSoftware(data); ok {
		fmt.Fprintf(out, "Software:    %s\n", software)
	}

	settings := cfg.Settings()
	base := inspectBase(settings, filePath)
	for _, mode := range []compressor.Mode{compressor.ModeBulk, compressor.ModeOnDemand} {
		variants, skipped := compressor.PlanVariants(base, meta.DisplayWidth(), settings.Options(mode), settings.Ladder)
		fmt.Fprintf(out, "\n%s (%d derivatives):\n", mode, len(variants))
		for _, v := range variants {
			fmt.Fprintf(out, "  %-5s %s\n", v.Format, v.Path)
		}
		if len(skipped) > 0 {
			fmt.Fprintf(out, "  skipped widths (no upscaling): %v\n", skipped)
		}
	}
	return nil
}

// inspectBase maps the file into the output tree when it lives under the
// asset root, otherwise plans next to the file itself.
func inspectBase(settings compressor.Settings, filePath string) string {
	src, err := paths.Canonical(filePath)
	if err != nil {
		return filePath
	}
	root, err := paths.Canonical(settings.InputRoot)
	if err != nil {
		return filePath
	}
	out, err := paths.MapToOutput(src, root, settings.OutputRoot)
	if err != nil {
		return filePath
	}
	return out
}

// runResolve prints the derivative URLs for a public path.
func runResolve(cmd *cobra.Command, src string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	r := paths.NewResolver(cfg.OutputDir, cfg.Resolutions)
	optimized := r.OptimizedSrc(src, width)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "src:    %s\n", optimized)
	fmt.Fprintf(out, "webp:   %s\n", r.WebPSrc(optimized))
	if srcset := r.SrcSet(src, natural); srcset != "" {
		fmt.Fprintf(out, "srcset: %s\n", srcset)
	}
	fmt.Fprintf(out, "sizes:  %s\n", paths.ResponsiveSizes(role))
	return nil
}

// runPublish uploads the output tree to the configured bucket.
func runPublish(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Publish.Bucket == "" || cfg.Publish.Endpoint == "" {
		return errors.New("publish.endpoint and publish.bucket must be configured")
	}

	log := setupLogger(cfg, cmd.OutOrStdout())
	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Publish.Endpoint,
		Access:   cfg.Publish.AccessKey,
		Secret:   cfg.Publish.SecretKey,
		Bucket:   cfg.Publish.Bucket,
		UseSSL:   cfg.Publish.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	if ensureBkt {
		if err := client.EnsureBucket(cmd.Context()); err != nil {
			return err
		}
	}

	root := cfg.GetOutputRoot()
	if !dirExists(root) {
		return fmt.Errorf("output directory does not exist: %s", root)
	}

	res, err := storage.NewPublisher(client, cfg.Publish.Prefix, cfg.Publish.Workers, log).Publish(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files (%s) to %s, %d failed\n",
			res.Uploaded, humanize.IBytes(uint64(res.Bytes)), client.Bucket(), res.Failed)
	}
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if inputRoot != "" {
		cfg.InputRoot = inputRoot
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if workers > 0 {
		cfg.Performance.Workers = workers
	}

	return cfg, nil
}

func printSummary(cmd *cobra.Command, stats *statistics.Statistics, report compressor.Report) {
	if quiet {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n"+stats.GetSummary())
	fmt.Fprintln(out, stats.GetFormatBreakdown())
	if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintf(out, "Failed sources (%d):\n", len(failed))
		for _, res := range failed {
			if res.Error != nil {
				fmt.Fprintf(out, "  %s: %v\n", res.RelPath, res.Error)
				continue
			}
			fmt.Fprintf(out, "  %s: %d of %d variants failed\n", res.RelPath, res.FailedVariants(), len(res.Variants))
		}
	}
	if stats.Failures() > 0 {
		fmt.Fprintln(out, stats.GetErrorSummary())
	}
}

func relOrSelf(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
