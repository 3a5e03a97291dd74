package service

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// ArchiveEntry is one named file inside an exported ZIP bundle.
type ArchiveEntry struct {
	Name string
	Data []byte
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// RenderDocument serializes the assembled text into a minimal DOCX: a ZIP
// package holding the content-types manifest, the package relationships and
// one word/document.xml with a paragraph per line. title becomes the leading
// bold paragraph when non-empty.
func RenderDocument(text, title string) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if title != "" {
		doc.WriteString(`<w:p><w:r><w:rPr><w:b/><w:sz w:val="36"/></w:rPr><w:t xml:space="preserve">`)
		if err := xml.EscapeText(&doc, []byte(title)); err != nil {
			return nil, fmt.Errorf("escape title: %w", err)
		}
		doc.WriteString(`</w:t></w:r></w:p>`)
	}

	for _, line := range strings.Split(text, "\n") {
		doc.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		if err := xml.EscapeText(&doc, []byte(line)); err != nil {
			return nil, fmt.Errorf("escape line: %w", err)
		}
		doc.WriteString(`</w:t></w:r></w:p>`)
	}

	doc.WriteString(`</w:body></w:document>`)

	return RenderArchive([]ArchiveEntry{
		{Name: "[Content_Types].xml", Data: []byte(docxContentTypes)},
		{Name: "_rels/.rels", Data: []byte(docxRels)},
		{Name: "word/document.xml", Data: doc.Bytes()},
	})
}

// RenderArchive packs the given entries into a ZIP archive.
func RenderArchive(entries []ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, entry := range entries {
		f, err := w.Create(entry.Name)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("create archive entry %s: %w", entry.Name, err)
		}
		if _, err := f.Write(entry.Data); err != nil {
			w.Close()
			return nil, fmt.Errorf("write archive entry %s: %w", entry.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
