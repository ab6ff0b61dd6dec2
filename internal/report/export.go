package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/xuri/excelize/v2"
)

// Sheet and section names shared by both export formats.
const (
	SectionOverview = "Overview"
	SectionDetails  = "Details"
	SectionJob      = "JobRequirements"
)

// Format selects the export artifact.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ContentType returns the MIME type of the artifact.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ParseFormat accepts xlsx (the default) and csv.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatXLSX, "excel":
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Export is the input of both exporters.
type Export struct {
	BatchID  string
	Job      string
	Outcomes []batch.ItemOutcome
}

// Write renders e in format f.
func Write(w io.Writer, f Format, e Export) error {
	if f == FormatCSV {
		return ExportCSV(w, e)
	}
	return ExportXLSX(w, e)
}

var overviewHeader = []string{
	"filename",
	"status",
	"processing_time_s",
	"total_score",
	"education_score",
	"work_experience_score",
	"technical_skills_score",
	"certifications_score",
	"projects_score",
	"languages_and_skills_score",
	"error",
	"note",
}

func detailsHeader() []string {
	header := []string{"filename", "full_name", "email", "phone"}
	return append(header, ai.FieldKeys...)
}

func overviewRow(o batch.ItemOutcome) []string {
	row := []string{
		o.Ref.Name,
		string(o.Status),
		strconv.FormatFloat(o.ProcessingTime, 'f', 2, 64),
	}
	if s := o.Scores; s != nil {
		row = append(row,
			strconv.FormatFloat(s.Total, 'f', 2, 64),
			strconv.Itoa(s.Education),
			strconv.Itoa(s.WorkExperience),
			strconv.Itoa(s.TechnicalSkills),
			strconv.Itoa(s.Certifications),
			strconv.Itoa(s.Projects),
			strconv.Itoa(s.LanguagesAndSkills),
		)
	} else {
		row = append(row, "", "", "", "", "", "", "")
	}
	return append(row, o.Error, o.Note)
}

func detailsRow(o batch.ItemOutcome) []string {
	row := []string{o.Ref.Name, o.Candidate.FullName, o.Candidate.Email, o.Candidate.Phone}
	for _, key := range ai.FieldKeys {
		row = append(row, fieldText(o.Fields[key]))
	}
	return row
}

func fieldText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// detailed returns the ordered outcomes that have parsed fields.
func detailed(outcomes []batch.ItemOutcome) []batch.ItemOutcome {
	var out []batch.ItemOutcome
	for _, o := range outcomes {
		if o.Status == batch.ItemCompleted && o.Fields != nil {
			out = append(out, o)
		}
	}
	return out
}

// ExportXLSX writes a workbook with the Overview, Details and JobRequirements sheets.
func ExportXLSX(w io.Writer, e Export) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SectionOverview); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, sheet := range []string{SectionDetails, SectionJob} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}
	index, _ := f.GetSheetIndex(SectionOverview)
	f.SetActiveSheet(index)

	ordered := Order(e.Outcomes)

	overview := [][]string{overviewHeader}
	for _, o := range ordered {
		overview = append(overview, overviewRow(o))
	}
	if err := writeRows(f, SectionOverview, overview); err != nil {
		return err
	}

	details := [][]string{detailsHeader()}
	for _, o := range detailed(ordered) {
		details = append(details, detailsRow(o))
	}
	if err := writeRows(f, SectionDetails, details); err != nil {
		return err
	}

	if err := writeRows(f, SectionJob, [][]string{{"job_requirements"}, {e.Job}}); err != nil {
		return err
	}

	_ = f.SetColWidth(SectionOverview, "A", "A", 32)
	_ = f.SetColWidth(SectionOverview, "K", "L", 48)
	_ = f.SetColWidth(SectionDetails, "A", "D", 24)
	_ = f.SetColWidth(SectionJob, "A", "A", 100)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]string) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// utf8BOM lets spreadsheet applications detect the encoding.
const utf8BOM = "\ufeff"

// ExportCSV writes the same sections as ExportXLSX into one CSV stream, each
// section introduced by a "# <Section>" marker row.
func ExportCSV(w io.Writer, e Export) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	ordered := Order(e.Outcomes)

	section := func(name string, rows [][]string) error {
		if err := cw.Write([]string{"# " + name}); err != nil {
			return err
		}
		return cw.WriteAll(rows)
	}

	overview := [][]string{overviewHeader}
	for _, o := range ordered {
		overview = append(overview, overviewRow(o))
	}
	if err := section(SectionOverview, overview); err != nil {
		return fmt.Errorf("csv overview: %w", err)
	}

	details := [][]string{detailsHeader()}
	for _, o := range detailed(ordered) {
		details = append(details, detailsRow(o))
	}
	if err := section(SectionDetails, details); err != nil {
		return fmt.Errorf("csv details: %w", err)
	}

	if err := section(SectionJob, [][]string{{"job_requirements"}, {e.Job}}); err != nil {
		return fmt.Errorf("csv job requirements: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
