// Command dolly plays scroll-driven stories in the terminal.
//
//	dolly                          play the bundled story
//	dolly --story tour.yaml --watch
//	dolly validate tour.yaml
//	dolly frames --story tour.yaml --out frames/ --baseline testdata/frames
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/dolly/story"
)

// appName names the per-user data directory for bookmarks.
const appName = "dolly"

var (
	storyPath string
	logFile   string
	verbose   bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "dolly",
	Short: "Play a scroll-driven story in the terminal",
	Long: `dolly plays a narrative one panel at a time. Scroll with the mouse wheel,
the arrow keys or space; enter begins the story and skips typing.

Without --story the bundled story is played. DOLLY_* environment variables
override the story's tuning.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logFile, verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runPlay,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storyPath, "story", "s", "", "story file (YAML or JSON with comments)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(validateCmd, framesCmd)
}

// newLogger logs to path only: the terminal belongs to the player.
func newLogger(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return l.Named(appName), nil
}

func loadStory(path string) (*story.Story, error) {
	if path == "" {
		return story.Default()
	}
	return story.Load(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
