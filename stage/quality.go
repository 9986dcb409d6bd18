package stage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultTolerance is the fraction of pixels allowed to differ.
const DefaultTolerance = 0.05

// ErrRegression is returned when a frame differs from its baseline by more
// than the tolerance.
var ErrRegression = errors.New("visual regression")

// ScriptSupervisor compares captured frames with baselines.
type ScriptSupervisor struct {
	baselineDir string
	currentDir  string
	tolerance   float64
	logger      *zap.Logger
}

// NewScriptSupervisor creates a supervisor with DefaultTolerance.
func NewScriptSupervisor(baselineDir, currentDir string, logger *zap.Logger) *ScriptSupervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptSupervisor{
		baselineDir: baselineDir,
		currentDir:  currentDir,
		tolerance:   DefaultTolerance,
		logger:      logger,
	}
}

// WithTolerance sets the allowed difference ratio.
func (ss *ScriptSupervisor) WithTolerance(tolerance float64) *ScriptSupervisor {
	ss.tolerance = tolerance
	return ss
}

// ValidateConsistency compares name.png in the current directory with the
// baseline. On a regression it writes name_diff.png next to the current frame.
func (ss *ScriptSupervisor) ValidateConsistency(name string) error {
	baseline, err := loadImage(filepath.Join(ss.baselineDir, name+".png"))
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	current, err := loadImage(filepath.Join(ss.currentDir, name+".png"))
	if err != nil {
		return fmt.Errorf("load current: %w", err)
	}

	difference := Difference(baseline, current)
	if difference <= ss.tolerance {
		ss.logger.Debug("frame matches baseline", zap.String("frame", name), zap.Float64("difference", difference))
		return nil
	}

	diffPath := filepath.Join(ss.currentDir, name+"_diff.png")
	if err := writeDiffImage(baseline, current, diffPath); err != nil {
		ss.logger.Warn("failed to write diff image", zap.String("path", diffPath), zap.Error(err))
	}
	return fmt.Errorf("%w in %s: %.2f%% difference (tolerance %.2f%%)",
		ErrRegression, name, difference*100, ss.tolerance*100)
}

// SetBaseline copies a captured frame into the baseline directory as name.png.
func (ss *ScriptSupervisor) SetBaseline(name, framePath string) error {
	if err := os.MkdirAll(ss.baselineDir, 0o755); err != nil {
		return fmt.Errorf("create baseline directory: %w", err)
	}
	input, err := os.Open(framePath)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.Create(filepath.Join(ss.baselineDir, name+".png"))
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

// HasBaseline reports whether a baseline exists for name.
func (ss *ScriptSupervisor) HasBaseline(name string) bool {
	_, err := os.Stat(filepath.Join(ss.baselineDir, name+".png"))
	return err == nil
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// Difference returns the fraction of pixels that differ. Images of different
// size are entirely different.
func Difference(a, b image.Image) float64 {
	bounds := a.Bounds()
	if bounds != b.Bounds() {
		return 1
	}
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	different := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if !sameColor(a.At(x, y), b.At(x, y)) {
				different++
			}
		}
	}
	return float64(different) / float64(total)
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// writeDiffImage marks differing pixels red over a dimmed baseline.
func writeDiffImage(baseline, current image.Image, path string) error {
	bounds := baseline.Bounds()
	diff := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			base := baseline.At(x, y)
			if !sameColor(base, current.At(x, y)) {
				diff.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			r, g, b, a := base.RGBA()
			diff.Set(x, y, color.RGBA{R: uint8(r >> 9), G: uint8(g >> 9), B: uint8(b >> 9), A: uint8(a >> 8)})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, diff); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
