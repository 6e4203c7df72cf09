package epub

import (
	"fmt"
	"html"
	"strings"
)

func (w *Writer) packageDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", w.id)
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", esc(w.book.Title))
	for _, a := range w.book.Authors {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", esc(a))
	}
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", esc(w.book.Language))
	fmt.Fprintf(&sb, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		w.book.Modified.UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString("  </metadata>\n  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"css\" href=\"style.css\" media-type=\"text/css\"/>\n")
	for i := range w.sections {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", sectionID(i), sectionFile(i))
	}
	sb.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for i := range w.sections {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", sectionID(i))
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

func (w *Writer) navDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Contents</title>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Contents</h1>
    <ol>
`)
	for i, s := range w.sections {
		fmt.Fprintf(&sb, "      <li><a href=\"%s\">%s</a></li>\n", sectionFile(i), esc(s.Title))
	}
	sb.WriteString("    </ol>\n  </nav>\n</body>\n</html>\n")
	return sb.String()
}

// ncxDocument is the ePub 2 table of contents, kept for older readers.
func (w *Writer) ncxDocument() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
`)
	fmt.Fprintf(&sb, "    <meta name=\"dtb:uid\" content=\"%s\"/>\n", w.id)
	sb.WriteString("    <meta name=\"dtb:depth\" content=\"1\"/>\n  </head>\n")
	fmt.Fprintf(&sb, "  <docTitle><text>%s</text></docTitle>\n  <navMap>\n", esc(w.book.Title))
	for i, s := range w.sections {
		fmt.Fprintf(&sb, "    <navPoint id=\"nav-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&sb, "      <navLabel><text>%s</text></navLabel>\n", esc(s.Title))
		fmt.Fprintf(&sb, "      <content src=\"%s\"/>\n", sectionFile(i))
		sb.WriteString("    </navPoint>\n")
	}
	sb.WriteString("  </navMap>\n</ncx>\n")
	return sb.String()
}

func (w *Writer) sectionDocument(s Section) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
`)
	fmt.Fprintf(&sb, "  <title>%s</title>\n", esc(s.Title))
	sb.WriteString("  <link rel=\"stylesheet\" type=\"text/css\" href=\"style.css\"/>\n</head>\n<body>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", esc(s.Title))
	for _, p := range Paragraphs(s.Text) {
		fmt.Fprintf(&sb, "<p>%s</p>\n", esc(p))
	}
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// Paragraphs splits text on blank lines and joins wrapped lines with a space.
func Paragraphs(text string) []string {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

func esc(s string) string {
	return html.EscapeString(s)
}
