// Package loader reads source files from disk into Documents for ingestion.
// Supported formats: arXiv-style JSON, plain text, Markdown, PDF, DOCX, XLSX
// and ODS.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// LoadDir walks a directory tree and parses every supported file into a
// Document. Unreadable or unsupported files are logged and skipped; the
// ingestion pipeline deals with per-document quality from there.
func LoadDir(dir string) ([]models.Document, error) {
	var docs []models.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !supported(filepath.Ext(path)) {
			return nil
		}
		doc, err := LoadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable file")
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	log.Info().Int("documents", len(docs)).Str("dir", dir).Msg("Loaded documents")
	return docs, nil
}

func supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".json", ".txt", ".md", ".pdf", ".docx", ".xlsx", ".ods":
		return true
	}
	return false
}

// LoadFile parses a single file into a Document. The document ID is the file
// name without extension, except for JSON papers which carry their own ID.
func LoadFile(path string) (models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return loadJSON(path)
	case ".txt":
		return loadText(path)
	case ".md":
		return loadMarkdown(path)
	case ".pdf":
		return loadPDF(path)
	case ".docx":
		return loadDOCX(path)
	case ".xlsx":
		return loadXLSX(path)
	case ".ods":
		return loadODS(path)
	default:
		return models.Document{}, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func docID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// arxivPaper mirrors the JSON layout of exported arXiv metadata records.
type arxivPaper struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Abstract   string   `json:"abstract"`
	Authors    []string `json:"authors"`
	Categories []string `json:"categories"`
}

func loadJSON(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, err
	}
	var paper arxivPaper
	if err := json.Unmarshal(data, &paper); err != nil {
		return models.Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	id := paper.ID
	if id == "" {
		id = docID(path)
	}
	text := paper.Abstract
	if paper.Title != "" {
		text = paper.Title + "\n\n" + paper.Abstract
	}

	meta := map[string]string{"source": path}
	if paper.Title != "" {
		meta["title"] = paper.Title
	}
	if len(paper.Authors) > 0 {
		meta["authors"] = strings.Join(paper.Authors, ", ")
	}
	if len(paper.Categories) > 0 {
		meta["categories"] = strings.Join(paper.Categories, ", ")
	}
	return models.Document{ID: id, Text: text, Metadata: meta}, nil
}

func loadText(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:       docID(path),
		Text:     string(data),
		Metadata: map[string]string{"source": path, "title": docID(path)},
	}, nil
}

func loadPDF(path string) (models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Document{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return models.Document{}, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return models.Document{}, err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return models.Document{}, err
		}
		if i > 1 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}
	return models.Document{
		ID:       docID(path),
		Text:     sb.String(),
		Metadata: map[string]string{"source": path, "title": docID(path), "pages": fmt.Sprintf("%d", numPages)},
	}, nil
}

func loadDOCX(path string) (models.Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return models.Document{}, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return models.Document{
		ID:       docID(path),
		Text:     content,
		Metadata: map[string]string{"source": path, "title": docID(path)},
	}, nil
}

func loadXLSX(path string) (models.Document, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return models.Document{}, err
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				sb.WriteString(cell.String() + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return models.Document{
		ID:       docID(path),
		Text:     sb.String(),
		Metadata: map[string]string{"source": path, "title": docID(path)},
	}, nil
}

func loadODS(path string) (models.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return models.Document{}, err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				sb.WriteString(cell + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return models.Document{
		ID:       docID(path),
		Text:     sb.String(),
		Metadata: map[string]string{"source": path, "title": docID(path)},
	}, nil
}
