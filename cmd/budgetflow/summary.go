package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"budgetflow/internal/core"
	"budgetflow/internal/services"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
	"budgetflow/internal/variance"
)

var printer = message.NewPrinter(language.English)

func printAllocation(w io.Writer, res *services.AllocationResult) {
	rep := res.Report
	printer.Fprintf(w, "%s: %s to %s, %d months\n", rep.Project, rep.Start, rep.End, len(rep.Months))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tROWS\tTOTAL\tWARNINGS\tDROPPED")
	for _, s := range rep.Sources {
		total := 0.0
		if s.Matrix != nil {
			total = s.Matrix.Total().InexactFloat64()
		}
		printer.Fprintf(tw, "%s\t%d\t%.2f\t%d\t%d\n", s.Source, len(s.Rows), total, len(s.Warnings), s.Dropped)
	}
	_ = tw.Flush()

	failed := make([]string, 0, len(rep.Failed))
	for id := range rep.Failed {
		failed = append(failed, string(id))
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "failed %s: %v\n", id, rep.Failed[core.FundingSourceID(id)])
	}

	if rep.Combined != nil {
		printer.Fprintf(w, "Combined total: %.2f\n", rep.Combined.Total().InexactFloat64())
	}
	if len(res.Exported) > 0 {
		printer.Fprintf(w, "Exported %d tables\n", len(res.Exported))
	}
}

func printVariance(w io.Writer, results map[core.FundingSourceID]*variance.Result) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tCATEGORIES\tSKIPPED")
	for _, id := range ids {
		r := results[core.FundingSourceID(id)]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", id, len(r.Categories()), len(r.Skipped))
	}
	_ = tw.Flush()
}

func printOverview(w io.Writer, t table.Table) {
	printer.Fprintf(w, "Overview written: %d lines\n", len(t.Rows))
}

func printRuns(w io.Writer, runs []storage.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSTARTED\tTOTAL\tNOTE")
	for _, r := range runs {
		note := r.Note
		if r.Error != "" {
			note = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Total, note)
	}
	_ = tw.Flush()
}
