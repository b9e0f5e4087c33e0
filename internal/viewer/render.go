package viewer

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/checkline-lab/checkline/internal/core/timeline"
)

//go:embed templates/timeline.html.tmpl
var timelineTemplate string

var tmpl = template.Must(template.New("timeline").Parse(timelineTemplate))

// RenderHTML renders the timeline as a standalone HTML page.
func RenderHTML(t *timeline.Timeline) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, BuildView(t)); err != nil {
		return nil, fmt.Errorf("render timeline: %w", err)
	}
	return buf.Bytes(), nil
}
