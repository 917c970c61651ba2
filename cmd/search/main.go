package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snow-ghost/dilemma/pkg/config"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/worker"
	"github.com/snow-ghost/dilemma/worker/heavy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (default $DILEMMA_CONFIG or dilemma.yaml)")
		baseline   = flag.String("baseline", "", "Strategy to improve on")
		opponents  = flag.String("opponents", "", "Comma-separated evaluation opponents")
		iterations = flag.Int("iterations", 0, "Search iterations")
		deadline   = flag.Duration("deadline", 0, "Wall clock limit for the whole search")
		llmMode    = flag.String("llm", "", "Generator: off, mock, openai (overrides config)")
		top        = flag.Int("top", 5, "Show this many best stored candidates for the baseline")
		verbose    = flag.Bool("verbose", false, "Print every candidate")
	)
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *llmMode != "" {
		cfg.LLM.Mode = *llmMode
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := cfg.Build(ctx, "search")
	if err != nil {
		log.Fatalf("Failed to build components: %v", err)
	}
	defer comp.Close(context.Background())

	req := heavy.Request{Baseline: *baseline, Iterations: *iterations, Deadline: *deadline}
	if *opponents != "" {
		for _, o := range strings.Split(*opponents, ",") {
			if o = strings.TrimSpace(o); o != "" {
				req.Opponents = append(req.Opponents, o)
			}
		}
	}

	sw := worker.NewSearchWorker(comp.WorkerConfig(worker.WorkerTypeHeavy))
	res, err := sw.Search(ctx, req)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "baseline %s scored %.3f; best %s (%s) scored %.3f after %d iterations, %d candidates, %d accepted, %s\n",
		res.Baseline, res.BaselineScore, res.Best.Name, res.BestSource, res.BestScore,
		res.Iterations, res.Evaluated, res.Accepted, res.Duration.Round(time.Millisecond))
	if *verbose {
		stats := comp.Telemetry.Snapshot()
		fmt.Fprintf(os.Stderr, "property checks passed %.1f%%; %d of %d candidates accepted across %d searches\n",
			100*stats.TestPassRate, stats.Accepted, stats.Candidates, stats.Searches)
		for _, c := range res.Candidates {
			status := "rejected"
			if c.Accepted {
				status = "accepted"
			}
			fmt.Fprintf(os.Stderr, "  %-40s %-8s %8.3f %s %s\n", c.Name, c.Source, c.Score, status, c.Reason)
		}
	}
	if *top > 0 {
		best, err := comp.Store.TopCandidates(ctx, res.Baseline, *top)
		if err != nil {
			log.Printf("Failed to read stored candidates: %v", err)
		}
		for i, c := range best {
			fmt.Fprintf(os.Stderr, "  #%d %s %.3f\n", i+1, c.Name, c.Score)
		}
	}
	if res.Saved {
		fmt.Fprintf(os.Stderr, "saved %s to the catalog\n", res.Best.Name)
	}

	doc, err := policy.MarshalConfig(res.Best)
	if err != nil {
		log.Fatalf("Failed to encode best config: %v", err)
	}
	os.Stdout.Write(doc)
}
