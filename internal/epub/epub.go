// Package epub writes transcribed books as ePub 3.0 files.
package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Book is the package-level metadata of an ePub.
type Book struct {
	// ID is the source's book identifier. The ePub identifier is a name-based
	// UUID derived from it, so rebuilding a book keeps its identity.
	ID       string
	Title    string
	Authors  []string
	Language string // ISO 639-1; defaults to "en"
	Modified time.Time
}

// Section is one navigable unit of the book, in reading order.
type Section struct {
	Title string
	Text  string // plain text; blank lines separate paragraphs
}

// identifierSpace namespaces ePub identifiers derived from book IDs.
var identifierSpace = uuid.MustParse("8f0b3d5e-2c1a-4e7f-9b6d-5a4c3e2f1d0b")

// Identifier returns the urn:uuid identifier for the book.
func (b Book) Identifier() string {
	if b.ID == "" {
		return "urn:uuid:" + uuid.New().String()
	}
	return "urn:uuid:" + uuid.NewSHA1(identifierSpace, []byte(b.ID)).String()
}

// Writer assembles the ePub container.
type Writer struct {
	book     Book
	sections []Section
	id       string
}

// NewWriter creates a writer for book. Sections without a title are named
// by position.
func NewWriter(book Book, sections []Section) *Writer {
	if book.Language == "" {
		book.Language = "en"
	}
	if book.Modified.IsZero() {
		book.Modified = time.Now()
	}
	named := make([]Section, len(sections))
	for i, s := range sections {
		if s.Title == "" {
			s.Title = fmt.Sprintf("Section %d", i+1)
		}
		named[i] = s
	}
	return &Writer{book: book, sections: named, id: book.Identifier()}
}

// Bytes renders the whole ePub in memory.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes the ePub container to out. The mimetype entry comes first
// and is stored uncompressed.
func (w *Writer) Render(out io.Writer) error {
	if len(w.sections) == 0 {
		return errors.New("epub has no sections")
	}

	zw := zip.NewWriter(out)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	if _, err := io.WriteString(mt, "application/epub+zip"); err != nil {
		return err
	}

	files := []struct {
		name    string
		content string
	}{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", w.packageDocument()},
		{"OEBPS/nav.xhtml", w.navDocument()},
		{"OEBPS/toc.ncx", w.ncxDocument()},
		{"OEBPS/style.css", stylesheet},
	}
	for i, s := range w.sections {
		files = append(files, struct {
			name    string
			content string
		}{"OEBPS/" + sectionFile(i), w.sectionDocument(s)})
	}

	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", f.name, err)
		}
		if _, err := io.WriteString(fw, f.content); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return zw.Close()
}

func sectionFile(i int) string {
	return fmt.Sprintf("section-%03d.xhtml", i+1)
}

func sectionID(i int) string {
	return fmt.Sprintf("s%03d", i+1)
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const stylesheet = `body {
  font-family: Georgia, "Times New Roman", serif;
  line-height: 1.5;
  margin: 1em;
}

h1 {
  font-size: 1.5em;
  margin: 2em 0 1em;
  text-align: center;
}

p {
  margin: 0;
  text-indent: 1.5em;
}

h1 + p {
  text-indent: 0;
}
`
