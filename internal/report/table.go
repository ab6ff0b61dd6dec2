package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spigell/resume-batch/internal/batch"
)

// WriteSummary renders the batch summary and the failure list as tables.
func WriteSummary(w io.Writer, s Summary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")

	table.Append([]string{"Documents", fmt.Sprint(s.Total)})
	table.Append([]string{"Succeeded", fmt.Sprint(s.Succeeded)})
	table.Append([]string{"Failed", fmt.Sprint(s.Failed)})
	table.Append([]string{"Wall time", fmt.Sprintf("%.2f s", s.ElapsedSec)})
	table.Append([]string{"Processing time", fmt.Sprintf("%.2f s", s.WorkSec)})
	table.Append([]string{"Average per document", fmt.Sprintf("%.2f s", s.MeanSec)})
	table.Append([]string{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate)})
	if s.Best != nil {
		table.Append([]string{"Best resume", fmt.Sprintf("%s (%.2f)", s.Best.Ref.Name, s.Best.Total())})
	}

	if err := table.Render(); err != nil {
		return err
	}

	if len(s.Failures) == 0 {
		return nil
	}

	failures := tablewriter.NewWriter(w)
	failures.Header("Failed document", "Kind", "Error")
	for _, o := range s.Failures {
		failures.Append([]string{o.Ref.Name, string(o.ErrorKind), o.Error})
	}
	return failures.Render()
}

// WriteRanking renders ordered outcomes with their total scores.
func WriteRanking(w io.Writer, ordered []batch.ItemOutcome) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Document", "Candidate", "Status", "Total")
	for i, o := range ordered {
		total := "-"
		if o.Scores != nil {
			total = fmt.Sprintf("%.2f", o.Total())
		}
		table.Append([]string{fmt.Sprint(i + 1), o.Ref.Name, o.Candidate.FullName, string(o.Status), total})
	}
	return table.Render()
}
