// Package docfmt implements document-format skills: spreadsheet, Word
// document, and PDF text extraction, plus QR code generation. None of
// these concerns are named by the core spec; they exist so the
// teacher's document-format dependency stack (excelize, docx, pdf,
// go-qrcode) stays wired to a real skill in the Dispatcher's factory
// table rather than dropped as dead weight (DESIGN.md).
package docfmt

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/skip2/go-qrcode"
	"github.com/xuri/excelize/v2"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
)

func resolve(services *skills.Services, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(services.Cwd(), path)
}

// ---------------------------------------------------------------------------
// xlsx_read — spreadsheet row dump via excelize
// ---------------------------------------------------------------------------

type xlsxReadSkill struct{ services *skills.Services }

func (s *xlsxReadSkill) Name() string            { return "xlsx_read" }
func (s *xlsxReadSkill) Category() skills.Category { return skills.Read }
func (s *xlsxReadSkill) Description() string {
	return "Read a spreadsheet (.xlsx) and return the rows of one sheet as text"
}

func (s *xlsxReadSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "description": "Spreadsheet path, relative to the agent's cwd or absolute"},
			"sheet": map[string]any{"type": "string", "description": "Sheet name (default: the first sheet)"},
		},
		"required": []string{"path"},
	}
}

func (s *xlsxReadSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		return domain.Failure("path is required")
	}
	path = resolve(s.services, path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Failure(fmt.Sprintf("opening %s: %v", path, err))
	}
	defer f.Close()

	sheet, _ := args["sheet"].(string)
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return domain.Failure(fmt.Sprintf("%s has no sheets", path))
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return domain.Failure(fmt.Sprintf("reading sheet %q: %v", sheet, err))
	}

	out := ""
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				out += "\t"
			}
			out += cell
		}
		out += "\n"
	}
	return domain.Success(out)
}

// XLSXReadFactory registers xlsx_read unconditionally; it only reads.
func XLSXReadFactory(services *skills.Services) (skills.Skill, bool) {
	return &xlsxReadSkill{services: services}, true
}

// ---------------------------------------------------------------------------
// docx_read — Word document text extraction
// ---------------------------------------------------------------------------

type docxReadSkill struct{ services *skills.Services }

func (s *docxReadSkill) Name() string            { return "docx_read" }
func (s *docxReadSkill) Category() skills.Category { return skills.Read }
func (s *docxReadSkill) Description() string {
	return "Extract the plain text content of a Word document (.docx)"
}

func (s *docxReadSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Document path, relative to the agent's cwd or absolute"},
		},
		"required": []string{"path"},
	}
}

func (s *docxReadSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		return domain.Failure("path is required")
	}
	path = resolve(s.services, path)

	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return domain.Failure(fmt.Sprintf("opening %s: %v", path, err))
	}
	defer r.Close()

	return domain.Success(r.Editable().GetContent())
}

// DocxReadFactory registers docx_read unconditionally; it only reads.
func DocxReadFactory(services *skills.Services) (skills.Skill, bool) {
	return &docxReadSkill{services: services}, true
}

// ---------------------------------------------------------------------------
// pdf_read — PDF text extraction
// ---------------------------------------------------------------------------

type pdfReadSkill struct{ services *skills.Services }

func (s *pdfReadSkill) Name() string            { return "pdf_read" }
func (s *pdfReadSkill) Category() skills.Category { return skills.Read }
func (s *pdfReadSkill) Description() string {
	return "Extract the plain text content of a PDF document"
}

func (s *pdfReadSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF path, relative to the agent's cwd or absolute"},
		},
		"required": []string{"path"},
	}
}

func (s *pdfReadSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		return domain.Failure("path is required")
	}
	path = resolve(s.services, path)

	f, r, err := pdf.Open(path)
	if err != nil {
		return domain.Failure(fmt.Sprintf("opening %s: %v", path, err))
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return domain.Failure(fmt.Sprintf("extracting text from %s: %v", path, err))
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return domain.Failure(fmt.Sprintf("reading extracted text from %s: %v", path, err))
	}
	return domain.Success(string(text))
}

// PDFReadFactory registers pdf_read unconditionally; it only reads.
func PDFReadFactory(services *skills.Services) (skills.Skill, bool) {
	return &pdfReadSkill{services: services}, true
}

// ---------------------------------------------------------------------------
// qrcode_generate — write a QR code PNG
// ---------------------------------------------------------------------------

type qrcodeGenerateSkill struct{ services *skills.Services }

func (s *qrcodeGenerateSkill) Name() string            { return "qrcode_generate" }
func (s *qrcodeGenerateSkill) Category() skills.Category { return skills.WriteOutsideCwd }
func (s *qrcodeGenerateSkill) Description() string {
	return "Generate a QR code PNG encoding the given text"
}

func (s *qrcodeGenerateSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "Text or URL to encode"},
			"path":    map[string]any{"type": "string", "description": "Output PNG path, relative to the agent's cwd or absolute"},
			"size":    map[string]any{"type": "integer", "description": "Image size in pixels, square (default 256)"},
		},
		"required": []string{"content", "path"},
	}
}

func (s *qrcodeGenerateSkill) ConfirmPrompt(args map[string]any) string {
	path, _ := args["path"].(string)
	return fmt.Sprintf("Generate a QR code at %s?", resolve(s.services, path))
}

func (s *qrcodeGenerateSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	content, _ := args["content"].(string)
	path, _ := args["path"].(string)
	if content == "" || path == "" {
		return domain.Failure("content and path are required")
	}
	path = resolve(s.services, path)

	size := 256
	switch v := args["size"].(type) {
	case float64:
		size = int(v)
	case int:
		size = v
	}

	if err := qrcode.WriteFile(content, qrcode.Medium, size, path); err != nil {
		return domain.Failure(fmt.Sprintf("writing QR code to %s: %v", path, err))
	}
	return domain.Success(fmt.Sprintf("wrote QR code to %s", path))
}

// QRCodeGenerateFactory registers qrcode_generate unconditionally;
// SANDBOXED agents may register it but every invocation is refused by
// the permission table before Execute runs, same as write_file.
func QRCodeGenerateFactory(services *skills.Services) (skills.Skill, bool) {
	return &qrcodeGenerateSkill{services: services}, true
}

// Factories returns every docfmt skill factory, for callers (cmd/nexus3d)
// appending to the Dispatcher's factory table alongside skills.DefaultFactories.
func Factories() []skills.Factory {
	return []skills.Factory{XLSXReadFactory, DocxReadFactory, PDFReadFactory, QRCodeGenerateFactory}
}
