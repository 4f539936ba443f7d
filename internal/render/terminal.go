package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/askframe/askframe/internal/table"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	codeStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	headerCell   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	bodyCell     = lipgloss.NewStyle().Padding(0, 1)
)

// Terminal writes reports for a console. Figures cannot be shown inline, so
// they are saved as PNG files under FigureDir and their paths printed.
type Terminal struct {
	Out       io.Writer
	FigureDir string
}

func NewTerminal(out io.Writer, figureDir string) *Terminal {
	return &Terminal{Out: out, FigureDir: figureDir}
}

func (t *Terminal) heading(title string) {
	fmt.Fprintln(t.Out, headingStyle.Render(title))
}

func (t *Terminal) RenderCode(code string) {
	t.heading("Generated Code")
	fmt.Fprintln(t.Out, codeStyle.Render(code))
}

// Render prints every output and returns the paths of saved figures.
func (t *Terminal) Render(report Report) ([]string, error) {
	if report.Empty() {
		fmt.Fprintln(t.Out, faintStyle.Render("No output was produced."))
		return nil, nil
	}
	var figures []string
	for _, output := range report.Outputs {
		t.heading(output.Title)
		switch output.Kind {
		case KindTable:
			fmt.Fprintln(t.Out, TableString(output.Table))
			if shown := output.Table.NumRows(); shown < output.TotalRows {
				fmt.Fprintln(t.Out, faintStyle.Render(fmt.Sprintf("showing %d of %d rows", shown, output.TotalRows)))
			}
		case KindValue, KindText:
			fmt.Fprintln(t.Out, strings.TrimRight(output.Text, "\n"))
		case KindFigure:
			path, err := t.saveFigure(output.Figure)
			if err != nil {
				return figures, &RenderError{Kind: KindFigure, Err: err}
			}
			figures = append(figures, path)
			fmt.Fprintln(t.Out, faintStyle.Render("figure saved to "+path))
		}
	}
	return figures, nil
}

func (t *Terminal) RenderFailure(stage, kind, message, trace string) {
	fmt.Fprintln(t.Out, errorStyle.Render(fmt.Sprintf("%s failed (%s)", stage, kind)))
	fmt.Fprintln(t.Out, message)
	if trace != "" {
		fmt.Fprintln(t.Out, faintStyle.Render(strings.TrimRight(trace, "\n")))
	}
}

func (t *Terminal) saveFigure(png []byte) (string, error) {
	dir := t.FigureDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(dir, "askframe-figure-*.png")
	if err != nil {
		return "", err
	}
	if _, err := file.Write(png); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// TableString draws a table with a lipgloss border.
func TableString(tbl *table.Table) string {
	if tbl == nil || tbl.NumColumns() == 0 {
		return faintStyle.Render("(empty table)")
	}
	rows := make([][]string, tbl.NumRows())
	for r := range rows {
		cells := tbl.Row(r)
		row := make([]string, len(cells))
		for c, cell := range cells {
			row[c] = table.FormatValue(cell)
		}
		rows[r] = row
	}
	return ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers(tbl.ColumnNames()...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerCell
			}
			return bodyCell
		}).
		Render()
}
