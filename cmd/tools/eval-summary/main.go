// Command eval-summary aggregates stored window evaluations per run.
// For precision, recall and F-score it reports the mean over scored
// windows and the share of windows scoring exactly 1 and exactly 0.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/mapseg/internal/lidar/storage/sqlite"
	"github.com/banshee-data/mapseg/internal/version"
)

type runSummary struct {
	Run     *sqlite.Run     `json:"run"`
	Summary *sqlite.Summary `json:"summary"`
}

func main() {
	dbPath := flag.String("db", "segment.db", "SQLite database written by segment")
	runID := flag.String("run", "", "Only summarize this run ID")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("eval-summary"))
		return
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("Database not found: %v", err)
	}
	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	summaries, err := collect(sqlite.NewRunStore(db), sqlite.NewEvaluationStore(db), *runID)
	if err != nil {
		log.Fatalf("Summary failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			log.Fatalf("Failed to encode JSON: %v", err)
		}
		return
	}
	if err := printTable(os.Stdout, summaries); err != nil {
		log.Fatalf("Failed to print table: %v", err)
	}
}

func collect(runs *sqlite.RunStore, evals *sqlite.EvaluationStore, runID string) ([]runSummary, error) {
	var selected []*sqlite.Run
	if runID != "" {
		r, err := runs.Get(runID)
		if err != nil {
			return nil, err
		}
		selected = []*sqlite.Run{r}
	} else {
		all, err := runs.List()
		if err != nil {
			return nil, err
		}
		selected = all
	}

	out := make([]runSummary, 0, len(selected))
	for _, r := range selected {
		s, err := evals.Summarize(r.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, runSummary{Run: r, Summary: s})
	}
	return out, nil
}

func printTable(w io.Writer, summaries []runSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEQ\tALGO\tFRAMES\tWINDOWS\tSKIPPED\tP MEAN\tP=1\tP=0\tR MEAN\tR=1\tR=0\tF MEAN\tF=1\tF=0")
	for _, rs := range summaries {
		r, s := rs.Run, rs.Summary
		fmt.Fprintf(tw, "%s\t%s\t%s\t[%d,%d)\t%d\t%d\t%s\t%s\t%s\n",
			r.RunID, r.Sequence, r.Algorithm, r.StartFrame, r.EndFrame, s.Windows, s.Skipped,
			scoreCells(s.Precision), scoreCells(s.Recall), scoreCells(s.FScore))
	}
	return tw.Flush()
}

func scoreCells(s sqlite.ScoreSummary) string {
	return fmt.Sprintf("%.4f\t%.1f%%\t%.1f%%", s.Mean, 100*s.ShareOne, 100*s.ShareZero)
}
