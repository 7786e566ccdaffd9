package table

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

const (
	CheckWidth  = 48
	DetailWidth = 60
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// ResultTable renders smoke check results.
type ResultTable struct {
	table *tablewriter.Table
}

func NewResultTable(w io.Writer) *ResultTable {
	if w == nil {
		w = os.Stdout
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Status", "Detail", "Duration"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	return &ResultTable{table: table}
}

func (rt *ResultTable) AddResult(result smoke.CheckResult) {
	status := StatusPass
	detail := result.Detail
	if !result.Passed() {
		status = StatusFail
		detail = result.Err.Error()
	}

	rt.table.Append([]string{
		truncate(result.Name, CheckWidth),
		status,
		truncate(detail, DetailWidth),
		result.Duration.Round(time.Millisecond).String(),
	})
}

func (rt *ResultTable) AddReport(report *smoke.Report) {
	for _, result := range report.Results {
		rt.AddResult(result)
	}
}

func (rt *ResultTable) Render() {
	rt.table.Render()
}

// Summary is the line printed under the table.
func Summary(report *smoke.Report) string {
	return fmt.Sprintf("%d checks, %d failed", len(report.Results), report.Failed())
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
