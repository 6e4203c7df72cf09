package export

import (
	"strings"
)

// Markdown renders doc as "# Title", an optional "By" line, a rule and one
// "## Section" per section.
func Markdown(doc *Document) []byte {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(doc.Title)
	sb.WriteString("\n\n")
	if len(doc.Authors) > 0 {
		sb.WriteString("By ")
		sb.WriteString(strings.Join(doc.Authors, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n")

	for _, s := range doc.Sections {
		sb.WriteString("\n## ")
		sb.WriteString(s.Title)
		sb.WriteString("\n")
		if text := s.Text(); text != "" {
			sb.WriteString("\n")
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return []byte(sb.String())
}
