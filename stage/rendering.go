package stage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FrameConfig sets the terminal grid and palette of a still frame.
type FrameConfig struct {
	Width      int    // terminal columns
	Height     int    // terminal rows
	Background string // hex color
	Foreground string // hex color
	OutputDir  string
}

// DefaultFrameConfig matches the player's dark palette on an 80x24 grid.
func DefaultFrameConfig(outputDir string) FrameConfig {
	return FrameConfig{
		Width:      80,
		Height:     24,
		Background: "#0b0d12",
		Foreground: "#d8d4cc",
		OutputDir:  outputDir,
	}
}

// RenderingStage rasterizes a terminal view into a PNG.
//
// Styling is dropped: every cell is drawn in the foreground color.
type RenderingStage struct {
	config     FrameConfig
	buffer     [][]rune
	background color.RGBA
	foreground color.RGBA
	charWidth  int
	charHeight int
	face       font.Face
}

// NewRenderingStage creates a stage and its output directory.
func NewRenderingStage(config FrameConfig) (*RenderingStage, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("frame size %dx%d must be positive", config.Width, config.Height)
	}
	bg, err := parseRGBA(config.Background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	fg, err := parseRGBA(config.Foreground)
	if err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	rs := &RenderingStage{
		config:     config,
		buffer:     make([][]rune, config.Height),
		background: bg,
		foreground: fg,
		charWidth:  7,
		charHeight: 13,
		face:       basicfont.Face7x13,
	}
	for i := range rs.buffer {
		rs.buffer[i] = make([]rune, config.Width)
	}
	return rs, nil
}

func parseRGBA(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Config returns the stage configuration.
func (rs *RenderingStage) Config() FrameConfig { return rs.config }

// RenderText loads a view into the character grid, clipping to its size.
func (rs *RenderingStage) RenderText(view string) {
	for _, row := range rs.buffer {
		for j := range row {
			row[j] = ' '
		}
	}
	for lineIdx, line := range strings.Split(ansi.Strip(view), "\n") {
		if lineIdx >= rs.config.Height {
			break
		}
		col := 0
		for _, r := range line {
			if col >= rs.config.Width {
				break
			}
			rs.buffer[lineIdx][col] = r
			col++
		}
	}
}

// Text returns the grid as plain lines.
func (rs *RenderingStage) Text() string {
	lines := make([]string, len(rs.buffer))
	for i, row := range rs.buffer {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n")
}

// Image draws the grid.
func (rs *RenderingStage) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, rs.config.Width*rs.charWidth, rs.config.Height*rs.charHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(rs.background), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(rs.foreground),
		Face: rs.face,
	}
	ascent := rs.face.Metrics().Ascent.Ceil()
	for lineIdx, row := range rs.buffer {
		for charIdx, r := range row {
			if r == ' ' || r == 0 {
				continue
			}
			drawer.Dot = fixed.P(charIdx*rs.charWidth, lineIdx*rs.charHeight+ascent)
			drawer.DrawString(string(r))
		}
	}
	return img
}

// CaptureFrame writes the grid as a PNG to filename.
func (rs *RenderingStage) CaptureFrame(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, rs.Image()); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
