package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Parse extracts plain text from a source document. The format is chosen by
// file extension; unknown extensions are read as plain text.
func Parse(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".ods":
		return parseODS(filePath)
	case ".txt", ".md", "":
		return parseText(filePath)
	default:
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	doc := r.Editable()
	return doc.GetContent(), nil
}

func parsePPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, file := range f.File {
		if strings.HasPrefix(file.Name, "ppt/slides/slide") {
			rc, err := file.Open()
			if err != nil {
				continue
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				continue
			}
			text.WriteString(extractTextFromXML(string(data)))
			text.WriteString("\n\n")
		}
	}
	return text.String(), nil
}

func parseXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

func parseODS(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}
