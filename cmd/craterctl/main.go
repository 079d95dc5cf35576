package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/crater-dist/crater/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/crater.db", "path to the crater SQLite database")
	action := flag.String("action", "", "action to perform: create-experiment, get-experiment, list-experiments")
	name := flag.String("name", "", "experiment name")
	baseline := flag.String("baseline", "", "baseline toolchain")
	candidate := flag.String("candidate", "", "candidate toolchain")
	items := flag.String("items", "", "comma-separated crate list")
	priority := flag.Int("priority", 0, "dispatch priority (higher runs first)")
	githubIssue := flag.String("github-issue", "", "GitHub issue reference, if any")
	crateSelect := flag.String("crate-select", "", "crate selection strategy name")
	jsonOutput := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "Usage: craterctl -db <path> -action <action> [flags]")
		fmt.Fprintln(os.Stderr, "Actions: create-experiment, get-experiment, list-experiments")
		os.Exit(1)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *action {
	case "create-experiment":
		if *name == "" || *baseline == "" || *candidate == "" {
			fmt.Fprintln(os.Stderr, "create-experiment requires -name, -baseline, -candidate")
			os.Exit(1)
		}
		exp := &store.Experiment{
			Name:               *name,
			Priority:           *priority,
			GithubIssue:        *githubIssue,
			ToolchainBaseline:  *baseline,
			ToolchainCandidate: *candidate,
			CrateSelect:        *crateSelect,
			Items:              splitItems(*items),
		}
		if err := db.CreateExperiment(exp); err != nil {
			fmt.Fprintf(os.Stderr, "create experiment: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created experiment %s\n", *name)

	case "get-experiment":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "get-experiment requires -name")
			os.Exit(1)
		}
		exp, err := db.GetExperiment(*name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get experiment: %v\n", err)
			os.Exit(1)
		}
		printExperiment(exp, *jsonOutput)

	case "list-experiments":
		statuses := []store.Status{
			store.StatusQueued, store.StatusRunning, store.StatusNeedsReport,
			store.StatusGeneratingReport, store.StatusCompleted, store.StatusReportFailed,
		}
		for _, status := range statuses {
			experiments, err := db.ListByStatus(status)
			if err != nil {
				fmt.Fprintf(os.Stderr, "list experiments: %v\n", err)
				os.Exit(1)
			}
			for _, exp := range experiments {
				printExperiment(exp, *jsonOutput)
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func splitItems(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

func printExperiment(exp *store.Experiment, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(exp)
		return
	}
	fmt.Printf("%-30s %-20s %-12s priority=%d\n", exp.Name, exp.Status, exp.Assignee, exp.Priority)
}
