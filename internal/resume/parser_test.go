package resume

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseUnsupportedFormat(t *testing.T) {
	for _, name := range []string{"resume.txt", "resume.doc", "resume", "resume.pdf.exe"} {
		if _, err := Parse(name, []byte("data")); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Parse(%q) error = %v, want ErrUnsupportedFormat", name, err)
		}
	}
}

func TestParseDOCX(t *testing.T) {
	xmlns := "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	data := buildDOCX(t, `<?xml version="1.0"?><w:document xmlns:w="`+xmlns+`"><w:body>`+
		`<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>jane@example.com</w:t></w:r><w:r><w:t> +1 415 555 0100</w:t></w:r></w:p>`+
		`</w:body></w:document>`)

	text, err := Parse("resume.docx", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Jane Doe\njane@example.com +1 415 555 0100"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestParseDOCXCaseInsensitiveExtension(t *testing.T) {
	data := buildDOCX(t, `<w:document xmlns:w="ns"><w:p><w:t>hello</w:t></w:p></w:document>`)
	text, err := Parse("Resume.DOCX", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
}

func TestParseDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	w.Write([]byte("<styles/>"))
	zw.Close()

	_, err := Parse("resume.docx", buf.Bytes())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseDOCXNotAZip(t *testing.T) {
	if _, err := Parse("resume.docx", []byte("definitely not a zip")); err == nil {
		t.Error("expected error for corrupt archive")
	}
}

func TestParsePDFCorrupt(t *testing.T) {
	if _, err := Parse("resume.pdf", []byte("not a pdf")); err == nil {
		t.Error("expected error for corrupt pdf")
	}
}
