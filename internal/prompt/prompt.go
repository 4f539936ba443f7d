package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/askframe/askframe/internal/table"
)

const (
	columnsPlaceholder  = "{{columns}}"
	questionPlaceholder = "{{question}}"
)

// DefaultTemplate constrains the model to the described columns and to a
// single fenced block that binds output_df or output_value, or draws a plot.
const DefaultTemplate = `You are a helpful data analyst. A user uploaded a pandas-style DataFrame named ` + "`df`" + ` with the following columns and data types:

{{columns}}

ONLY use these columns. Do NOT assume any missing or extra columns like 'Date' or 'Temp'.

Now answer the following question using Python code:

"""{{question}}"""

Output ONLY runnable code inside triple backticks (` + "```python ... ```" + `), no explanation.

Valid outputs should assign result to one of:
- ` + "`output_df`" + ` for tables
- ` + "`output_value`" + ` for single values
- or use ` + "`plt.show()`" + ` for plots

The code runs in a restricted Python dialect:
- There is no import statement; ` + "`df`, `pd`, `plt` and `sns`" + ` are already available.
- Compare columns with methods instead of operators: ` + "`df['x'].gt(5)`, `.lt`, `.ge`, `.le`, `.eq`, `.ne`, `.between(a, b)`, `.isin([...])`" + `; combine masks with ` + "`&` and `|`" + `.
- ` + "`df.query(sql)`" + ` runs SQL where the table is named ` + "`df`" + `.
- DataFrames carry no row labels: filtering, sorting, ` + "`head` and `tail`" + ` number the result's rows from 0, so ` + "`idxmax`/`idxmin`" + ` give positions in the frame they were called on. Select rows with ` + "`sort_values(...).head(n)`" + ` or a mask such as ` + "`df[df['x'].eq(df['x'].max())]`" + ` instead of indexing by label.
- ` + "`describe()`" + ` returns its statistic names (count, mean, std, ...) as a leading unnamed column.
- Top-level code only: no classes, no try/except, no while loops over unbounded conditions.
`

type Builder struct {
	template string
}

func New(template string) (*Builder, error) {
	if strings.TrimSpace(template) == "" {
		return &Builder{template: DefaultTemplate}, nil
	}
	if !strings.Contains(template, columnsPlaceholder) || !strings.Contains(template, questionPlaceholder) {
		return nil, fmt.Errorf("prompt template must contain %s and %s", columnsPlaceholder, questionPlaceholder)
	}
	return &Builder{template: template}, nil
}

func Default() *Builder {
	return &Builder{template: DefaultTemplate}
}

// LoadFile reads a custom template; an empty path selects DefaultTemplate.
func LoadFile(path string) (*Builder, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	return New(string(raw))
}

// Build embeds the schema and the question verbatim.
func (b *Builder) Build(schema table.Schema, question string) string {
	lines := make([]string, 0, len(schema))
	for _, line := range schema.Lines() {
		lines = append(lines, "- "+line)
	}
	// Replace the question last so placeholder text inside it stays literal.
	out := strings.Replace(b.template, columnsPlaceholder, strings.Join(lines, "\n"), 1)
	return strings.Replace(out, questionPlaceholder, question, 1)
}
