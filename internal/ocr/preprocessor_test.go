package ocr

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

func TestImageMagickCommand(t *testing.T) {
	// the health check and the preprocessor must agree on the binary
	cmd := ImageMagickCommand()
	if _, err := exec.LookPath("magick"); err == nil {
		assert.Equal(t, "magick", cmd)
	} else {
		assert.Equal(t, "convert", cmd)
	}
}

func TestNormalizePassthrough(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.VisionConfig
		mime string
	}{
		{name: "disabled", cfg: models.VisionConfig{PreprocessEnabled: false}, mime: "image/jpeg"},
		{name: "non-image mime", cfg: models.VisionConfig{PreprocessEnabled: true}, mime: "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor(tt.cfg)
			out := p.Normalize([]byte("payload"), tt.mime)
			assert.False(t, out.Preprocessed)
			assert.Equal(t, []byte("payload"), out.Data)
			assert.Equal(t, tt.mime, out.MIMEType)
		})
	}
}

func TestNewPreprocessorDefaults(t *testing.T) {
	p := NewPreprocessor(models.VisionConfig{PreprocessEnabled: true})
	assert.Equal(t, 2000, p.maxEdge)
	assert.Equal(t, 85, p.jpegQuality)
}
