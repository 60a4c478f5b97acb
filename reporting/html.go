package reporting

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testhost/templates"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var resultsTemplate = template.Must(
	template.New("results.html.tmpl").
		Funcs(templates.GetTemplateFunc()).
		Funcs(template.FuncMap{"clean": stripansi.Strip}).
		ParseFS(templateFS, "templates/results.html.tmpl"))

// writeHTML writes the report as a standalone HTML page.
func writeHTML(w io.Writer, report *Report) error {
	if err := resultsTemplate.Execute(w, report); err != nil {
		return fmt.Errorf("failed to render HTML results: %w", err)
	}
	return nil
}
