package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ArtifactWriter persists a report and its evidence under a single output
// directory.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a writer rooted at outputDir. The directory is
// created on first write.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{outputDir: outputDir}
}

// WriteAll persists the report as report.json and report.md, writing any
// captured screenshots first so both renderings carry their references. The
// report's Screenshots fields are updated in place with the written paths,
// relative to the output directory.
func (w *ArtifactWriter) WriteAll(r *Report) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.writeScreenshots(r); err != nil {
		return fmt.Errorf("failed to write screenshots: %w", err)
	}

	if err := w.WriteReportJSON(r); err != nil {
		return fmt.Errorf("failed to write report JSON: %w", err)
	}

	if err := w.WriteReportMarkdown(r); err != nil {
		return fmt.Errorf("failed to write report markdown: %w", err)
	}

	return nil
}

// WriteReportJSON writes the structured report to report.json.
func (w *ArtifactWriter) WriteReportJSON(r *Report) error {
	data, err := RenderJSON(r)
	if err != nil {
		return err
	}
	path, err := w.securePath("report.json")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// WriteReportMarkdown writes the human-readable report to report.md.
func (w *ArtifactWriter) WriteReportMarkdown(r *Report) error {
	path, err := w.securePath("report.md")
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(RenderMarkdown(r)), 0600)
}

// WriteScreenshotsPDF bundles every written screenshot into screenshots.pdf,
// one page per image, in presentation order. Call after WriteAll; it is a
// no-op when the report carries no screenshots.
func (w *ArtifactWriter) WriteScreenshotsPDF(r *Report) error {
	var images []string
	for _, res := range r.Results {
		for _, ref := range res.Screenshots {
			abs, err := w.securePath(ref)
			if err != nil {
				return err
			}
			images = append(images, abs)
		}
	}
	if len(images) == 0 {
		return nil
	}

	out, err := w.securePath("screenshots.pdf")
	if err != nil {
		return err
	}
	if err := api.ImportImagesFile(images, out, nil, nil); err != nil {
		return fmt.Errorf("failed to build screenshot PDF: %w", err)
	}
	return nil
}

func (w *ArtifactWriter) writeScreenshots(r *Report) error {
	for i := range r.Results {
		res := &r.Results[i]
		if len(res.ScreenshotData) == 0 {
			continue
		}
		if err := os.MkdirAll(filepath.Join(w.outputDir, "screenshots"), 0755); err != nil {
			return err
		}
		slug := slugify(res.Name)
		if slug == "" {
			slug = fmt.Sprintf("scenario-%d", i+1)
		}
		for j, data := range res.ScreenshotData {
			ref := filepath.Join("screenshots", fmt.Sprintf("%s-%02d.png", slug, j+1))
			path, err := w.securePath(ref)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0600); err != nil {
				return err
			}
			res.Screenshots = append(res.Screenshots, ref)
		}
	}
	return nil
}

// securePath resolves rel inside the output directory, rejecting anything
// that would escape it.
func (w *ArtifactWriter) securePath(rel string) (string, error) {
	root := filepath.Clean(w.outputDir)
	abs := filepath.Join(root, rel)
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifact path escapes output directory: %s", rel)
	}
	return abs, nil
}

// slugify reduces a scenario name to a filesystem-safe token.
func slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
