package stage

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed templates/report.html
var reportTemplate string

// FrameReport is a contact sheet of captured frames.
type FrameReport struct {
	Title     string
	Timestamp time.Time
	Success   bool
	Frames    []FrameEntry
}

// FrameEntry is one still in a FrameReport.
type FrameEntry struct {
	Label       string
	Filename    string
	Step        int
	Stage       int
	Description string
	// Regression is the baseline comparison failure, if any.
	Regression string
	DataURL    template.URL
}

// HTMLReportGenerator writes FrameReports as self-contained HTML.
type HTMLReportGenerator struct {
	outputDir string
	tmpl      *template.Template
}

// NewHTMLReportGenerator creates a generator writing into outputDir.
func NewHTMLReportGenerator(outputDir string) *HTMLReportGenerator {
	return &HTMLReportGenerator{
		outputDir: outputDir,
		tmpl:      template.Must(template.New("report").Parse(reportTemplate)),
	}
}

// GenerateReport embeds every frame image and writes index.html. It returns
// the path of the report.
func (g *HTMLReportGenerator) GenerateReport(report FrameReport) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	for i := range report.Frames {
		f := &report.Frames[i]
		if f.DataURL != "" {
			continue
		}
		url, err := imageDataURL(f.Filename)
		if err != nil {
			return "", fmt.Errorf("frame %s: %w", f.Label, err)
		}
		f.DataURL = url
	}

	reportPath := filepath.Join(g.outputDir, "index.html")
	file, err := os.Create(reportPath)
	if err != nil {
		return "", err
	}
	if err := g.tmpl.Execute(file, report); err != nil {
		file.Close()
		return "", fmt.Errorf("render report: %w", err)
	}
	return reportPath, file.Close()
}

// imageDataURL reads an image file into a base64 data URL.
func imageDataURL(imagePath string) (template.URL, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}

	mimeType := "image/png"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".gif":
		mimeType = "image/gif"
	}
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageBytes)), nil
}
