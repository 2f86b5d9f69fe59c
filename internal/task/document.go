package task

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/seantiz/modeld/internal/model"
)

// DocumentData is the data handed to a model's document template and to the
// results message template.
type DocumentData struct {
	Model  *model.Descriptor
	Task   *Task
	Params map[string]any
	// ParameterTable is a LaTeX tabular of name, description and value.
	ParameterTable string
	// ParameterText is the same table as comma separated text.
	ParameterText string
}

func newDocumentData(t *Task) DocumentData {
	return DocumentData{
		Model:          t.Model,
		Task:           t,
		Params:         t.Values(),
		ParameterTable: latexParameterTable(t),
		ParameterText:  textParameterTable(t),
	}
}

// documentBody renders the body of the results document.
func documentBody(t *Task) (string, error) {
	data := newDocumentData(t)
	if t.Model.Document == nil {
		return data.ParameterTable, nil
	}
	var buf bytes.Buffer
	if err := t.Model.Document.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return buf.String(), nil
}

func latexParameterTable(t *Task) string {
	rows := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		value := p.Raw
		if p.Spec.Unit != "" {
			value += " " + p.Spec.Unit
		}
		rows = append(rows, fmt.Sprintf("%s & %s & %s",
			model.LatexEscape(p.Spec.Name), model.LatexEscape(p.Spec.Label), model.LatexEscape(value)))
	}

	var b strings.Builder
	b.WriteString("\\begin{center}\n")
	b.WriteString("\\begin{tabular}{lll}\n")
	b.WriteString("\\textbf{Name} & \\textbf{Description} & \\textbf{Value} \\\\\n")
	b.WriteString("\\hline\n")
	for _, r := range rows {
		b.WriteString(r)
		b.WriteString(" \\\\\n")
	}
	b.WriteString("\\end{tabular}\n")
	b.WriteString("\\end{center}\n")
	return b.String()
}

func textParameterTable(t *Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", t.Model.ShortName)
	b.WriteString("Name, Description, Value, Units\n")
	for _, p := range t.Parameters {
		fmt.Fprintf(&b, "%s, %s, %s, %s\n", p.Spec.Name, p.Spec.Label, p.Raw, p.Spec.Unit)
	}
	return b.String()
}
