package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/capfetch/packages/core/config"
	"github.com/abdul-hamid-achik/capfetch/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag      string
	historyRunFlag     string
	historyLimitFlag   int
	historyJSONFlag    bool
	historyNoColorFlag bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fetches",
	Long: `List the fetches recorded by runs started with --history.

Examples:
  capfetch history --db fetches.db
  capfetch history --db fetches.db --run 3f0c... --json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", "", "SQLite database (default: history from the config file)")
	historyCmd.Flags().StringVar(&historyRunFlag, "run", "", "Only show fetches of this run id")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 50, "Maximum number of rows (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "Output as JSON")
	historyCmd.Flags().BoolVar(&historyNoColorFlag, "no-color", false, "Disable colored output")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	path := historyDBFlag
	if path == "" {
		cfg, err := config.LoadConfig("")
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		path = cfg.History
	}
	if path == "" {
		return withExitCode(ExitUsageError, fmt.Errorf("no history database: pass --db or set history in the config file"))
	}

	db, err := history.Open(path)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer db.Close()

	entries, err := db.List(context.Background(), history.Filter{RunID: historyRunFlag, Limit: historyLimitFlag})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSONFlag {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if entries == nil {
			entries = []history.Entry{}
		}
		return encoder.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No fetches recorded.")
		return nil
	}

	color.NoColor = historyNoColorFlag || color.NoColor
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	lastRun := ""
	for _, e := range entries {
		if e.RunID != lastRun {
			fmt.Fprintf(out, "\n%s %s\n", dim(e.CreatedAt.Local().Format("2006-01-02 15:04:05")), dim("run "+e.RunID))
			fmt.Fprintf(out, "%s\n", e.URL)
			lastRun = e.RunID
		}

		switch e.Status {
		case "complete":
			fmt.Fprintf(out, "  %s %d %s %s\n", green("✓"), e.Iteration, e.Artifact, dim(fmt.Sprintf("%d bytes, %dms", e.Bytes, e.DurationMs)))
		case "abandoned":
			fmt.Fprintf(out, "  %s %d %s\n", yellow("-"), e.Iteration, e.Reason)
		default:
			fmt.Fprintf(out, "  %s %d %s\n", red("✗"), e.Iteration, e.Error)
		}
	}
	fmt.Fprintln(out)

	return nil
}
