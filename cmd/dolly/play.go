package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/dolly/internal/bookmark"
	"github.com/teranos/dolly/internal/watch"
	"github.com/teranos/dolly/tui"
)

var (
	watchStory bool
	resume     bool
)

func init() {
	rootCmd.Flags().BoolVarP(&watchStory, "watch", "w", false, "reload the story when its file changes")
	rootCmd.Flags().BoolVarP(&resume, "resume", "r", false, "continue from the last saved position")
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := loadStory(storyPath)
	if err != nil {
		return err
	}
	if watchStory && s.Source == "" {
		return errors.New("--watch needs --story")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := tui.DefaultConfig()
	cfg.Logger = logger
	cfg.Bookmarks = bookmark.Open(appName, logger)
	cfg.Resume = resume

	if watchStory {
		w, err := watch.New(s.Source, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		cfg.Changes = w.Changes()
	}

	player, err := tui.NewPlayer(s, cfg)
	if err != nil {
		return err
	}
	defer player.Close()

	logger.Info("playing story",
		zap.String("title", s.Title),
		zap.String("source", s.Source),
		zap.Int("panels", len(s.Panels)),
		zap.Bool("resume", resume))

	program := tea.NewProgram(player,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
