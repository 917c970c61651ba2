package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/snow-ghost/dilemma/pkg/config"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker"
	"github.com/snow-ghost/dilemma/worker/light"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (default $DILEMMA_CONFIG or dilemma.yaml)")
		players    = flag.String("players", "", "Comma-separated players (default: every catalog and remote strategy)")
		rounds     = flag.Int("rounds", 0, "Rounds per match")
		noise      = flag.Float64("noise", -1, "Probability an action is flipped")
		seeds      = flag.String("seeds", "", "Comma-separated base seeds")
		reps       = flag.Int("reps", 0, "Repetitions per pairing and seed")
		selfPlay   = flag.Bool("self-play", false, "Also pair every player with itself")
		hideLength = flag.Bool("hide-length", false, "Do not tell players the match length")
		format     = flag.String("format", "table", "Output format: table, json, csv")
		fetch      = flag.String("fetch", "", "URL of a strategy document to add to the field")
	)
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := cfg.Build(ctx, "tournament")
	if err != nil {
		log.Fatalf("Failed to build components: %v", err)
	}
	defer comp.Close(context.Background())

	req := light.Request{Rounds: *rounds, Repetitions: *reps}
	switch {
	case *players != "":
		req.Players = splitList(*players)
	case len(cfg.Worker.Tournament.Players) > 0:
		req.Players = cfg.Worker.Tournament.Players
	default:
		req.Players = comp.PlayerNames()
	}
	if *fetch != "" {
		names, err := comp.Fetch(ctx, *fetch)
		if err != nil {
			log.Fatalf("Failed to fetch strategies: %v", err)
		}
		req.Players = append(req.Players, names...)
	}
	if *noise >= 0 {
		req.Noise = noise
	}
	if *seeds != "" {
		for _, s := range splitList(*seeds) {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				log.Fatalf("Invalid seed %q: %v", s, err)
			}
			req.Seeds = append(req.Seeds, v)
		}
	}
	if *selfPlay {
		req.SelfPlay = selfPlay
	}
	if *hideLength {
		req.HideLength = hideLength
	}

	tw := worker.NewTournamentWorker(comp.WorkerConfig(worker.WorkerTypeLight))
	t, err := tw.Run(ctx, req)
	if err != nil {
		log.Fatalf("Tournament failed: %v", err)
	}

	if err := render(os.Stdout, *format, t, comp.Store); err != nil {
		log.Fatalf("Failed to print standings: %v", err)
	}
}

func render(w *os.File, format string, t *store.Tournament, st store.Store) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case "csv":
		data, err := st.ExportCSV(context.Background(), t.ID)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	fmt.Fprintf(w, "Tournament %s: %d players, %d matches (%d cached), %d rounds, noise %.3f, %s\n\n",
		t.ID, len(t.Players), t.Matches, t.Cached, t.Rounds, t.Noise, t.Duration.Round(time.Millisecond))
	tab := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tab, "RANK\tSTRATEGY\tMEAN\tTOTAL\tW\tD\tL\tCOOP\tTRANS\t")
	for _, s := range t.Standings {
		fmt.Fprintf(tab, "%d\t%s\t%.3f\t%.0f\t%d\t%d\t%d\t%.1f%%\t%d\t\n",
			s.Rank, s.Name, s.Mean, s.Total, s.Wins, s.Draws, s.Losses, 100*s.CooperationRate, s.Transitions)
	}
	return tab.Flush()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
