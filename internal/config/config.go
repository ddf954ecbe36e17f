// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	apperrors "github.com/skinmatch/platform/internal/errors"
	"github.com/skinmatch/platform/internal/retrieval"
)

type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	CataloguePath   string
	TopK            int
	ScoringWorkers  int
	PaletteMode     string
	TrimAlpha       bool
	ROIPadding      float64
	AlphaThreshold  int
	DefaultSlots    []string
	IndexBatchSize  int
	IndexFlushDelay time.Duration
	QueryTimeout    time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		CataloguePath:   getEnv("CATALOGUE_PATH", "catalogue.json"),
		TopK:            getEnvInt("TOP_K", retrieval.DefaultTopK),
		ScoringWorkers:  getEnvInt("SCORING_WORKERS", retrieval.DefaultWorkers),
		PaletteMode:     getEnv("PALETTE_MODE", "buckets"),
		TrimAlpha:       getEnvBool("TRIM_ALPHA", descriptor.DefaultTrimAlpha),
		ROIPadding:      getEnvFloat("ROI_PADDING", descriptor.DefaultROIPadding),
		AlphaThreshold:  getEnvInt("ALPHA_THRESHOLD", descriptor.DefaultAlphaThreshold),
		DefaultSlots:    getEnvList("DEFAULT_SLOTS", slotNames(catalogue.DefaultSlots)),
		IndexBatchSize:  getEnvInt("INDEX_BATCH_SIZE", catalogue.DefaultIndexBatchSize),
		IndexFlushDelay: getEnvMillis("INDEX_FLUSH_DELAY_MS", catalogue.DefaultIndexFlushDelay),
		QueryTimeout:    getEnvMillis("QUERY_TIMEOUT_MS", 5*time.Second),
	}
}

// Validate rejects values the extractor or driver cannot run with.
func (c *Config) Validate() error {
	if c.PaletteMode != "buckets" && c.PaletteMode != "kmeans" {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "PALETTE_MODE must be buckets or kmeans, got %q", c.PaletteMode)
	}
	if c.AlphaThreshold < 1 || c.AlphaThreshold > 255 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "ALPHA_THRESHOLD must be within 1..255, got %d", c.AlphaThreshold)
	}
	if c.ROIPadding < 0 || c.ROIPadding >= 0.5 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "ROI_PADDING must be within [0, 0.5), got %g", c.ROIPadding)
	}
	if c.TopK <= 0 || c.ScoringWorkers <= 0 || c.IndexBatchSize <= 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "TOP_K, SCORING_WORKERS and INDEX_BATCH_SIZE must be positive")
	}
	for _, s := range c.DefaultSlots {
		if _, err := catalogue.ParseSlot(s); err != nil {
			return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "DEFAULT_SLOTS entry %q", s)
		}
	}
	return nil
}

// ExtractorOptions builds descriptor options from the configured overrides.
func (c *Config) ExtractorOptions() descriptor.Options {
	opts := descriptor.DefaultOptions()
	opts.PaletteMode = descriptor.ParsePaletteMode(c.PaletteMode)
	opts.AlphaThreshold = uint8(c.AlphaThreshold)
	opts.ROI.AlphaThreshold = uint8(c.AlphaThreshold)
	opts.ROI.TrimAlpha = c.TrimAlpha
	opts.ROI.Padding = c.ROIPadding
	return opts
}

// Slots returns DefaultSlots parsed, skipping invalid names.
func (c *Config) Slots() []catalogue.Slot {
	out := make([]catalogue.Slot, 0, len(c.DefaultSlots))
	for _, s := range c.DefaultSlots {
		if slot, err := catalogue.ParseSlot(s); err == nil {
			out = append(out, slot)
		}
	}
	return out
}

func slotNames(slots []catalogue.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
