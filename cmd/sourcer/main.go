package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/maltedev/product-sourcing/internal/app"
	"github.com/maltedev/product-sourcing/internal/browser"
	"github.com/maltedev/product-sourcing/internal/config"
	"github.com/maltedev/product-sourcing/internal/storage"
)

func main() {
	var (
		urlFile  = flag.String("file", "", "File with one product URL per line")
		listing  = flag.String("listing", "", "Listing page URL to collect instead of processing products")
		out      = flag.String("out", "records.json", "Output file for assembled records")
		headless = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Browser.Headless = *headless

	logger := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal, finishing current item")
		cancel()
	}()

	b, err := browser.New(app.BrowserOptions(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	p := app.NewPipeline(cfg, b, logger)

	if *listing != "" {
		entries, err := p.CollectListing(ctx, *listing)
		if err != nil {
			logger.Error("failed to collect listing", "url", *listing, "error", err)
			os.Exit(1)
		}
		listings, err := storage.NewListingStorage(cfg.Sourcing.ListingFile)
		if err != nil {
			logger.Error("failed to open listing storage", "error", err)
			os.Exit(1)
		}
		added, err := listings.AddEntries(*listing, entries)
		if err != nil {
			logger.Error("failed to store listing", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Found %d products, %d new (stored in %s)\n", len(entries), added, cfg.Sourcing.ListingFile)
		return
	}

	urls, err := collectURLs(*urlFile, flag.Args())
	if err != nil {
		logger.Error("failed to read urls", "error", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sourcer [-file urls.txt] [-out records.json] url...")
		os.Exit(2)
	}

	result, runErr := p.Run(ctx, urls)
	if result != nil {
		if err := storage.WriteRecords(*out, result.Records()); err != nil {
			logger.Error("failed to write records", "error", err)
			os.Exit(1)
		}
		for _, item := range result.Items {
			mark := "ok  "
			if !item.Success {
				mark = "FAIL"
			}
			fmt.Printf("%s %s: %s\n", mark, item.URL, item.Message)
		}
		fmt.Printf("%d/%d succeeded, %d records written to %s\n",
			result.Succeeded(), len(urls), len(result.Records()), *out)
	}
	if runErr != nil {
		logger.Error("batch stopped", "error", runErr)
		os.Exit(1)
	}
}

// collectURLs merges URLs from file and args, skipping blanks and # comments.
func collectURLs(file string, args []string) ([]string, error) {
	var urls []string
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
	}
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}
	return urls, nil
}
