package model

import (
	"fmt"
	"strings"
	"text/template"
)

// Names the results document occupies in a task's working directory.
const (
	DocumentSource = "results.tex"
	DocumentOutput = "results.pdf"
)

// reservedAttachments are written by the renderer and cannot be declared by
// a model.
var reservedAttachments = []string{DocumentSource, DocumentOutput, "results.aux", "results.log"}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// LatexEscape escapes s for use in LaTeX running text.
func LatexEscape(s string) string {
	return latexEscaper.Replace(s)
}

// DocumentFuncs are the functions available to document templates.
// latex escapes any value's text form.
func DocumentFuncs() template.FuncMap {
	return template.FuncMap{
		"latex": func(v any) string { return LatexEscape(fmt.Sprint(v)) },
	}
}
