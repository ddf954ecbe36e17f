// skinmatch is the offline companion to the match server: it describes
// images, ranks a catalogue against one, and precomputes manifest descriptors.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	"github.com/skinmatch/platform/internal/matcher"
	"github.com/skinmatch/platform/internal/pixel"
	"github.com/skinmatch/platform/internal/resilience"
	"github.com/skinmatch/platform/internal/retrieval"
	"github.com/skinmatch/platform/internal/scoring"
)

var (
	paletteMode   string
	cataloguePath string
	slotNames     []string
	topK          int
	outPath       string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "skinmatch",
	Short: "Visual similarity matching for cosmetic catalogues",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [image-path]",
	Short: "Print the visual descriptor of an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var matchCmd = &cobra.Command{
	Use:   "match [image-path]",
	Short: "Rank catalogue items against an image",
	Long:  "Describes the image and ranks every item of the requested slots by visual similarity. Lower scores are closer.",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

var indexCmd = &cobra.Command{
	Use:   "index [manifest-path]",
	Short: "Precompute descriptors for manifest entries that only name an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paletteMode, "palette-mode", "buckets", "palette extraction: buckets or kmeans")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	matchCmd.Flags().StringVar(&cataloguePath, "catalogue", "catalogue.json", "catalogue manifest")
	matchCmd.Flags().StringSliceVar(&slotNames, "slot", nil, "slot to search (repeatable)")
	matchCmd.Flags().IntVar(&topK, "top", retrieval.DefaultTopK, "matches per slot")

	indexCmd.Flags().StringVarP(&outPath, "out", "o", "", "output manifest (required)")
	_ = indexCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(indexCmd)
}

func newExtractor() *descriptor.Extractor {
	opts := descriptor.DefaultOptions()
	opts.PaletteMode = descriptor.ParsePaletteMode(paletteMode)
	return descriptor.NewExtractor(opts)
}

func decodeFile(path string) (*pixel.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	return pixel.Decode(f)
}

// loadCatalogue reads the manifest and describes image-only entries before
// returning.
func loadCatalogue(ctx context.Context, path string, ext *descriptor.Extractor) (*catalogue.MemoryStore, []catalogue.Entry, error) {
	entries, err := catalogue.ReadManifest(ctx, path, resilience.DefaultRetryConfig())
	if err != nil {
		return nil, nil, err
	}
	store := catalogue.NewStore()
	idx := catalogue.NewIndexer(store, catalogue.DirSource{Root: filepath.Dir(path)}, ext, 0, 0)
	stats, err := catalogue.Populate(store, idx, entries)
	idx.Stop()
	if err != nil {
		return nil, nil, err
	}
	indexed, failed := idx.Stats()
	slog.Info("catalogue loaded", "path", path, "items", stats.Items, "indexed", indexed, "failed", failed)
	return store, entries, nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	buf, err := decodeFile(args[0])
	if err != nil {
		return err
	}
	return printJSON(newExtractor().Extract(buf))
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ext := newExtractor()

	buf, err := decodeFile(args[0])
	if err != nil {
		return err
	}
	store, _, err := loadCatalogue(ctx, cataloguePath, ext)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}

	driver := retrieval.NewDriver(scoring.NewScorer(scoring.DefaultPolicy()), retrieval.Options{TopK: topK})
	m := matcher.New(store, ext, driver, matcher.Config{TopK: topK})
	slots, err := m.ParseSlots(slotNames)
	if err != nil {
		return err
	}
	res, err := m.Match(ctx, buf, slots, topK)
	if err != nil {
		return fmt.Errorf("failed to match: %w", err)
	}
	return printJSON(res)
}

func runIndex(cmd *cobra.Command, args []string) error {
	store, entries, err := loadCatalogue(cmd.Context(), args[0], newExtractor())
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	// Entries that could not be described keep their image for a later run.
	described := make(map[string]catalogue.Entry)
	for _, e := range catalogue.Entries(store.All()) {
		described[e.ID] = e
	}
	for i, e := range entries {
		if d, ok := described[e.ID]; ok && d.Descriptor != nil {
			entries[i] = d
		}
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := catalogue.WriteManifest(f, entries); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return f.Close()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
