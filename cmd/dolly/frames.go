package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/dolly/stage"
	"github.com/teranos/dolly/story"
	"github.com/teranos/dolly/tui"
)

type framesOptions struct {
	out       string
	baseline  string
	width     int
	height    int
	tolerance float64
	update    bool
	report    bool
}

var framesOpts framesOptions

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Render every panel at rest to PNG",
	Long: `frames seeks the player to each panel, waits for it to settle and writes
NN_id.png into --out. With --baseline each frame is compared with the image
of the same name there; missing baselines are created. The command fails when
any frame differs by more than --tolerance.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFrames(cmd, framesOpts)
	},
}

func init() {
	f := framesCmd.Flags()
	f.StringVarP(&framesOpts.out, "out", "o", "frames", "directory for the captured frames")
	f.StringVar(&framesOpts.baseline, "baseline", "", "directory of baseline frames to compare against")
	f.IntVar(&framesOpts.width, "width", 80, "terminal columns")
	f.IntVar(&framesOpts.height, "height", 24, "terminal rows")
	f.Float64Var(&framesOpts.tolerance, "tolerance", stage.DefaultTolerance, "fraction of pixels allowed to differ")
	f.BoolVar(&framesOpts.update, "update", false, "overwrite baselines with the new frames")
	f.BoolVar(&framesOpts.report, "report", false, "write an HTML contact sheet next to the frames")
}

// restProgress is a point where the panel has fully entered and not begun to
// leave.
func restProgress(p story.Panel) float64 {
	return (p.Entry[1] + p.Exit[0]) / 2
}

func runFrames(cmd *cobra.Command, opts framesOptions) error {
	s, err := loadStory(storyPath)
	if err != nil {
		return err
	}

	cfg := tui.DefaultConfig()
	cfg.Width = opts.width
	cfg.Height = opts.height
	cfg.FrameInterval = 0
	cfg.Logger = logger
	player, err := tui.NewPlayer(s, cfg)
	if err != nil {
		return err
	}
	defer player.Close()

	frameCfg := stage.DefaultFrameConfig(opts.out)
	frameCfg.Width = opts.width
	frameCfg.Height = opts.height
	rs, err := stage.NewRenderingStage(frameCfg)
	if err != nil {
		return err
	}

	var supervisor *stage.ScriptSupervisor
	if opts.baseline != "" {
		supervisor = stage.NewScriptSupervisor(opts.baseline, opts.out, logger).WithTolerance(opts.tolerance)
	}

	out := cmd.OutOrStdout()
	entries := make([]stage.FrameEntry, 0, len(s.Panels))
	regressions := 0
	for i, p := range s.Panels {
		if err := player.Seek(i, restProgress(p)); err != nil {
			return err
		}
		name := fmt.Sprintf("%02d_%s", i, p.ID)
		path := filepath.Join(opts.out, name+".png")
		rs.RenderText(player.View())
		if err := rs.CaptureFrame(path); err != nil {
			return fmt.Errorf("capture %s: %w", name, err)
		}

		entry := stage.FrameEntry{Label: p.ID, Filename: path, Step: i, Stage: i, Description: string(p.Kind)}
		status := "captured"
		switch {
		case supervisor == nil:
		case opts.update || !supervisor.HasBaseline(name):
			if err := supervisor.SetBaseline(name, path); err != nil {
				return fmt.Errorf("baseline %s: %w", name, err)
			}
			status = "baseline written"
		default:
			err := supervisor.ValidateConsistency(name)
			switch {
			case errors.Is(err, stage.ErrRegression):
				regressions++
				entry.Regression = err.Error()
				status = "REGRESSED"
			case err != nil:
				return err
			default:
				status = "matches baseline"
			}
		}
		entries = append(entries, entry)
		fmt.Fprintf(out, "%-40s %s\n", path, status)
		logger.Debug("frame captured", zap.String("panel", p.ID), zap.String("status", status))
	}

	if opts.report {
		path, err := stage.NewHTMLReportGenerator(opts.out).GenerateReport(stage.FrameReport{
			Title:   s.Title,
			Success: regressions == 0,
			Frames:  entries,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "report: %s\n", path)
	}
	if regressions > 0 {
		return fmt.Errorf("%d of %d frames differ from their baselines", regressions, len(entries))
	}
	return nil
}
