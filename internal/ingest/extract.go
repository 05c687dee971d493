// Package ingest turns uploaded file bytes into content store records.
// Extraction is deliberately lightweight: enough structure to give the
// model counts and text, not a full document parser.
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"agentgate/internal/domain"
)

// ErrUnsupportedType rejects files the ingestion pipeline cannot extract.
// The caller surfaces it to the uploader; it is never retried.
var ErrUnsupportedType = errors.New("unsupported file type")

const maxSheetPreviewRows = 200

// Extract produces a FileRecord (without id/timestamps) for the supported
// upload types: PDF, xlsx and plain-text formats.
func Extract(filename string, content []byte) (domain.FileRecord, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(filename, content)
	case ".xlsx":
		return extractXLSX(filename, content)
	case ".txt", ".md", ".csv":
		return extractText(filename, content)
	default:
		return domain.FileRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}
}

func extractText(filename string, content []byte) (domain.FileRecord, error) {
	if !utf8.Valid(content) {
		return domain.FileRecord{}, fmt.Errorf("%w: %s is not valid utf-8 text", ErrUnsupportedType, filename)
	}
	return domain.FileRecord{
		Filename: filename,
		FileType: domain.FileTypeText,
		Text:     string(content),
	}, nil
}

// extractPDF counts page objects and pulls text from uncompressed text
// objects. Compressed streams are skipped; the page count stays accurate
// either way.
func extractPDF(filename string, content []byte) (domain.FileRecord, error) {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return domain.FileRecord{}, fmt.Errorf("%w: %s is not a pdf document", ErrUnsupportedType, filename)
	}
	return domain.FileRecord{
		Filename:  filename,
		FileType:  domain.FileTypePDF,
		PageCount: countPDFPages(content),
		Text:      extractPDFText(content),
	}, nil
}

func countPDFPages(content []byte) int {
	count := 0
	for _, marker := range [][]byte{[]byte("/Type /Page"), []byte("/Type/Page")} {
		offset := 0
		for {
			idx := bytes.Index(content[offset:], marker)
			if idx < 0 {
				break
			}
			at := offset + idx + len(marker)
			// skip "/Type /Pages" container objects
			if at >= len(content) || content[at] != 's' {
				count++
			}
			offset = at
		}
		if count > 0 {
			break
		}
	}
	return count
}

func extractPDFText(content []byte) string {
	var out strings.Builder
	rest := content
	for {
		start := bytes.Index(rest, []byte("BT"))
		if start < 0 {
			break
		}
		end := bytes.Index(rest[start:], []byte("ET"))
		if end < 0 {
			break
		}
		block := rest[start : start+end]
		for _, literal := range parenLiterals(block) {
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(literal)
		}
		rest = rest[start+end+2:]
	}
	return strings.TrimSpace(out.String())
}

func parenLiterals(block []byte) []string {
	var literals []string
	var current []byte
	depth := 0
	escaped := false
	for _, b := range block {
		if depth == 0 {
			if b == '(' {
				depth = 1
				current = current[:0]
			}
			continue
		}
		if escaped {
			switch b {
			case 'n':
				current = append(current, '\n')
			case 't':
				current = append(current, '\t')
			default:
				current = append(current, b)
			}
			escaped = false
			continue
		}
		switch b {
		case '\\':
			escaped = true
		case '(':
			depth++
			current = append(current, b)
		case ')':
			depth--
			if depth == 0 {
				if text := strings.TrimSpace(string(current)); text != "" && utf8.ValidString(text) {
					literals = append(literals, text)
				}
			} else {
				current = append(current, b)
			}
		default:
			current = append(current, b)
		}
	}
	return literals
}

type sharedStrings struct {
	Items []sharedStringItem `xml:"si"`
}

type sharedStringItem struct {
	T    string   `xml:"t"`
	Runs []string `xml:"r>t"`
}

func (i sharedStringItem) text() string {
	if i.T != "" {
		return i.T
	}
	return strings.Join(i.Runs, "")
}

type worksheet struct {
	Rows []worksheetRow `xml:"sheetData>row"`
}

type worksheetRow struct {
	Cells []worksheetCell `xml:"c"`
}

type worksheetCell struct {
	Type   string `xml:"t,attr"`
	V      string `xml:"v"`
	Inline string `xml:"is>t"`
}

func extractXLSX(filename string, content []byte) (domain.FileRecord, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: %s is not a valid xlsx archive", ErrUnsupportedType, filename)
	}

	var shared []string
	if f := findZipFile(reader, "xl/sharedStrings.xml"); f != nil {
		if raw, err := readZipFile(f); err == nil {
			var sst sharedStrings
			if xml.Unmarshal(raw, &sst) == nil {
				for _, item := range sst.Items {
					shared = append(shared, item.text())
				}
			}
		}
	}

	var sheetFiles []*zip.File
	for _, f := range reader.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/") && strings.HasSuffix(f.Name, ".xml") {
			sheetFiles = append(sheetFiles, f)
		}
	}
	if len(sheetFiles) == 0 {
		return domain.FileRecord{}, fmt.Errorf("%w: %s has no worksheets", ErrUnsupportedType, filename)
	}
	sort.Slice(sheetFiles, func(i, j int) bool { return sheetFiles[i].Name < sheetFiles[j].Name })

	totalRows := 0
	var text strings.Builder
	for _, f := range sheetFiles {
		raw, err := readZipFile(f)
		if err != nil {
			continue
		}
		var sheet worksheet
		if xml.Unmarshal(raw, &sheet) != nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(f.Name), ".xml")
		totalRows += len(sheet.Rows)
		fmt.Fprintf(&text, "Sheet %s (%d rows):\n", name, len(sheet.Rows))
		for i, row := range sheet.Rows {
			if i >= maxSheetPreviewRows {
				fmt.Fprintf(&text, "... (%d more rows)\n", len(sheet.Rows)-maxSheetPreviewRows)
				break
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cellValue(cell, shared))
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteByte('\n')
		}
	}

	return domain.FileRecord{
		Filename:   filename,
		FileType:   domain.FileTypeExcel,
		SheetCount: len(sheetFiles),
		TotalRows:  totalRows,
		Text:       strings.TrimSpace(text.String()),
	}, nil
}

func cellValue(cell worksheetCell, shared []string) string {
	switch cell.Type {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(cell.V))
		if err != nil || idx < 0 || idx >= len(shared) {
			return cell.V
		}
		return shared[idx]
	case "inlineStr":
		return cell.Inline
	default:
		return cell.V
	}
}

func findZipFile(reader *zip.Reader, name string) *zip.File {
	for _, f := range reader.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
