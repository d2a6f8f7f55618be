// Command datagen writes a deterministic synthetic OHLCV series to CSV, and
// optionally into a Parquet bar store, for offline pipeline runs and fixture
// data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"quantlab/services/marketdata"
)

func main() {
	// Flags
	symbol := flag.String("symbol", "SYN", "Symbol stamped on the series")
	seed := flag.Int64("seed", 42, "Random walk seed")
	bars := flag.Int("bars", 750, "Number of daily bars")
	start := flag.String("start", "2022-01-01", "First bar date (YYYY-MM-DD)")
	out := flag.String("out", "./synthetic.csv", "CSV output path")
	storeDir := flag.String("store", "", "Also save into this Parquet bar store directory")
	interval := flag.String("interval", "1d", "Interval key for the bar store")
	flag.Parse()

	from, err := time.Parse("2006-01-02", *start)
	if err != nil {
		log.Fatalf("Bad -start: %v", err)
	}
	to := from.AddDate(0, 0, *bars)

	src := marketdata.NewSyntheticSource(*seed)
	src.Bars = *bars
	series, err := src.Fetch(context.Background(), *symbol, from.UTC(), to.UTC())
	if err != nil {
		log.Fatalf("Failed to generate series: %v", err)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}
	if err := marketdata.WriteCSV(*out, series); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}
	fmt.Printf("Wrote %d bars to %s\n", len(series), *out)

	if *storeDir != "" {
		store := marketdata.NewStore(*storeDir)
		if err := store.Save(*symbol, *interval, series); err != nil {
			log.Fatalf("Failed to save bar store: %v", err)
		}
		fmt.Printf("Saved %s/%s into store %s\n", *symbol, *interval, *storeDir)
	}
}

