package ocr

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// NormalizedImage is the output of preprocessing. Preprocessed is false when
// the original bytes were passed through untouched, either because the input
// is not an image, preprocessing is disabled, or the toolchain failed.
type NormalizedImage struct {
	Data         []byte
	MIMEType     string
	Preprocessed bool
}

// Preprocessor normalizes uploaded receipt photos before they reach the
// model: orientation fix, colorspace, downscale, auto-contrast. Phone photos
// arrive rotated via EXIF and far larger than any model needs.
type Preprocessor struct {
	enabled     bool
	maxEdge     int
	jpegQuality int
}

// NewPreprocessor creates a preprocessor from the vision config section.
func NewPreprocessor(cfg models.VisionConfig) *Preprocessor {
	maxEdge := cfg.MaxImageEdge
	if maxEdge <= 0 {
		maxEdge = 2000
	}
	quality := cfg.JPEGQuality
	if quality < 50 || quality > 95 {
		quality = 85
	}
	return &Preprocessor{
		enabled:     cfg.PreprocessEnabled,
		maxEdge:     maxEdge,
		jpegQuality: quality,
	}
}

// ImageMagickCommand returns the ImageMagick entry point on this host:
// "magick" for ImageMagick 7, otherwise "convert" for ImageMagick 6.
func ImageMagickCommand() string {
	if _, err := exec.LookPath("magick"); err == nil {
		return "magick"
	}
	return "convert"
}

// Normalize enhances an image for extraction. It never fails: any problem
// falls back to returning the original bytes with Preprocessed false.
func (p *Preprocessor) Normalize(data []byte, mimeType string) NormalizedImage {
	passthrough := NormalizedImage{Data: data, MIMEType: mimeType}

	if !p.enabled || !strings.HasPrefix(mimeType, "image/") {
		return passthrough
	}

	tmpDir := os.TempDir()
	token := uuid.New().String()
	inputFile := filepath.Join(tmpDir, fmt.Sprintf("receipt_in_%s", token))
	outputFile := filepath.Join(tmpDir, fmt.Sprintf("receipt_out_%s.jpg", token))

	if err := os.WriteFile(inputFile, data, 0644); err != nil {
		return passthrough
	}
	defer os.Remove(inputFile)
	defer os.Remove(outputFile)

	// Pipeline: apply EXIF orientation -> sRGB -> cap longest edge ->
	// histogram auto-contrast -> re-encode JPEG.
	args := []string{
		inputFile,
		"-auto-orient",
		"-colorspace", "sRGB",
		"-resize", fmt.Sprintf("%dx%d>", p.maxEdge, p.maxEdge),
		"-normalize",
		"-quality", fmt.Sprintf("%d", p.jpegQuality),
		outputFile,
	}

	cmd := exec.Command(ImageMagickCommand(), args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		fmt.Printf("[Preprocessor] ImageMagick failed: %v - %s\n", err, stderr.String())
		return passthrough
	}

	processed, err := os.ReadFile(outputFile)
	if err != nil || len(processed) == 0 {
		return passthrough
	}

	fmt.Printf("[Preprocessor] Image normalized: %d bytes -> %d bytes\n", len(data), len(processed))
	return NormalizedImage{Data: processed, MIMEType: "image/jpeg", Preprocessed: true}
}
