package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Fatal("mimetype must be the first, uncompressed entry")
	}
	files := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = string(b)
	}
	return files
}

func TestWriter_Container(t *testing.T) {
	book := Book{
		ID:       "B00TEST",
		Title:    "Fish & Chips",
		Authors:  []string{"A. Writer", "B. Writer"},
		Modified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	sections := []Section{
		{Title: "Chapter One", Text: "First line\nwrapped.\n\nSecond <para>."},
		{Text: "Untitled text."},
	}

	data, err := NewWriter(book, sections).Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	files := readZip(t, data)

	if files["mimetype"] != "application/epub+zip" {
		t.Errorf("mimetype = %q", files["mimetype"])
	}
	for _, name := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml", "OEBPS/toc.ncx", "OEBPS/style.css", "OEBPS/section-001.xhtml", "OEBPS/section-002.xhtml"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}

	opf := files["OEBPS/content.opf"]
	for _, want := range []string{
		"<dc:title>Fish &amp; Chips</dc:title>",
		"<dc:creator>A. Writer</dc:creator>",
		"<dc:creator>B. Writer</dc:creator>",
		"<dc:language>en</dc:language>",
		"2024-05-01T12:00:00Z",
		`<itemref idref="s001"/>`,
		`<itemref idref="s002"/>`,
		book.Identifier(),
	} {
		if !strings.Contains(opf, want) {
			t.Errorf("content.opf missing %q", want)
		}
	}

	if nav := files["OEBPS/nav.xhtml"]; !strings.Contains(nav, ">Section 2</a>") {
		t.Error("untitled section was not named by position")
	}

	ch := files["OEBPS/section-001.xhtml"]
	if !strings.Contains(ch, "<p>First line wrapped.</p>") || !strings.Contains(ch, "<p>Second &lt;para&gt;.</p>") {
		t.Errorf("section body = %s", ch)
	}
}

func TestBook_IdentifierIsStable(t *testing.T) {
	a := Book{ID: "B00TEST"}.Identifier()
	b := Book{ID: "B00TEST"}.Identifier()
	if a != b || !strings.HasPrefix(a, "urn:uuid:") {
		t.Errorf("identifiers %q and %q", a, b)
	}
	if a == (Book{ID: "B00OTHER"}).Identifier() {
		t.Error("different books share an identifier")
	}
}

func TestWriter_RenderStreams(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(Book{ID: "B00TEST", Title: "Streamed"}, []Section{{Title: "One", Text: "Body."}})
	if err := w.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	files := readZip(t, buf.Bytes())
	if !strings.Contains(files["OEBPS/section-001.xhtml"], "Body.") {
		t.Errorf("section = %q", files["OEBPS/section-001.xhtml"])
	}
}

func TestWriter_NoSections(t *testing.T) {
	if _, err := NewWriter(Book{Title: "Empty"}, nil).Bytes(); err == nil {
		t.Error("expected error for a book with no sections")
	}
}

func TestParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single", "one line", []string{"one line"}},
		{"wrapped", "a\nb\n\nc", []string{"a b", "c"}},
		{"crlf and padding", "  a \r\n\r\n\r\n b  ", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paragraphs(tt.text)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Paragraphs(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
