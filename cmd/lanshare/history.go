package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/store"
)

var (
	historyLimit int
	historyRunID int64
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past transfers",
		Long: `Show recent transfer runs, newest first. Use --run to list the individual
files of one run.`,
		Example: `  lanshare history
  lanshare history --limit 50
  lanshare history --run 12`,
		RunE: historyList,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	cmd.Flags().Int64Var(&historyRunID, "run", 0, "show the files of one run by id")

	return cmd
}

func historyList(cmd *cobra.Command, args []string) error {
	st, err := store.New(globalCfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer st.Close()

	if historyRunID > 0 {
		return printRunFiles(st, historyRunID)
	}

	runs, err := st.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No transfers recorded.")
		return nil
	}

	fmt.Printf("%-5s %-20s %-24s %-10s %-10s %s\n", "ID", "WHEN", "PEER", "FILES", "SIZE", "STATUS")
	for _, run := range runs {
		files := fmt.Sprintf("%d", run.FilesCompleted)
		if run.FilesFailed > 0 {
			files = fmt.Sprintf("%d+%df", run.FilesCompleted, run.FilesFailed)
		}
		fmt.Printf("%-5d %-20s %-24s %-10s %-10s %s\n",
			run.ID,
			run.StartTime.Local().Format("2006-01-02 15:04:05"),
			run.Peer,
			files,
			humanize.IBytes(uint64(run.BytesTransferred)),
			run.Status,
		)
	}
	return nil
}

func printRunFiles(st *store.Store, runID int64) error {
	files, err := st.RunFiles(runID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No files recorded for run %d.\n", runID)
		return nil
	}
	for _, f := range files {
		if f.Status == "failed" {
			fmt.Printf("failed     %-40s %s\n", f.RemotePath, f.ErrorMessage)
			continue
		}
		fmt.Printf("%-10s %-40s %s\n", humanize.IBytes(uint64(f.Size)), f.RemotePath, f.LocalPath)
	}
	return nil
}
