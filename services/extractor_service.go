package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdfreader "github.com/ledongthuc/pdf"
	log "github.com/sirupsen/logrus"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/medtour/chatbot-service/models"
)

// PDF extractor names accepted in configuration.
const (
	PDFExtractorLedongthuc = "ledongthuc"
	PDFExtractorUnipdf     = "unipdf"
)

// PageExtractor reads the pages of one PDF file.
type PageExtractor func(path string) ([]models.Page, error)

// FileDocumentSource loads documents from a directory on disk.
type FileDocumentSource struct {
	Dir        string
	extractPDF PageExtractor
}

// NewFileDocumentSource picks the PDF extractor by name. The unipdf
// extractor needs a metered licence key.
func NewFileDocumentSource(dir, pdfExtractor, unidocLicenseKey string) (*FileDocumentSource, error) {
	src := &FileDocumentSource{Dir: dir}
	switch pdfExtractor {
	case PDFExtractorLedongthuc, "":
		src.extractPDF = extractPagesLedongthuc
	case PDFExtractorUnipdf:
		if unidocLicenseKey == "" {
			return nil, models.ConfigError("documents", "unipdf extractor requires a licence key")
		}
		if err := license.SetMeteredKey(unidocLicenseKey); err != nil {
			return nil, models.NewError(models.KindConfig, "documents", fmt.Errorf("set unidoc licence key: %w", err))
		}
		src.extractPDF = extractPagesUnipdf
	default:
		return nil, models.ConfigError("documents", "unknown pdf extractor %q", pdfExtractor)
	}
	return src, nil
}

// Discover lists supported files under Dir in lexical order. A missing
// directory is reported as empty.
func (s *FileDocumentSource) Discover() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.Dir {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && isSupportedFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load extracts the pages of a single file.
func (s *FileDocumentSource) Load(path string) (models.Document, error) {
	pages, err := s.ExtractPages(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{Name: filepath.Base(path), Path: path, Pages: pages}, nil
}

// ExtractPages reads a file and returns its text page by page.
func (s *FileDocumentSource) ExtractPages(path string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Number: 0, Text: string(content)}}, nil
	case ".pdf":
		return s.extractPDF(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}

func extractPagesLedongthuc(path string) ([]models.Page, error) {
	f, r, err := pdfreader.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages := make([]models.Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			log.WithFields(log.Fields{"file": path, "page": i - 1}).Warnf("EXTRACTOR: skipping unreadable page: %v", err)
			continue
		}
		pages = append(pages, models.Page{Number: i - 1, Text: text})
	}
	return pages, nil
}

// extractPagesUnipdf uses UniPDF to get the text of every page.
func extractPagesUnipdf(path string) ([]models.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	pages := make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.Page{Number: i - 1, Text: text})
	}
	return pages, nil
}
