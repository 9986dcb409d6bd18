package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const smallStory = `
title: Small
panels:
  - {id: intro, kind: title, title: Small, entry: [0, 0.1], exit: [0.7, 1]}
  - {id: ask, kind: question, advance: wait, body: Why?, entry: [0, 0.3], exit: [0.8, 1]}
  - {id: end, kind: credits, reveal: true, entry: [0.05, 0.4], exit: [0.99, 1]}
credits: |
  ## Thanks
`

func writeStory(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	logger = zap.NewNop()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	return cmd, &out
}

func TestValidate(t *testing.T) {
	cmd, out := testCmd()
	path := writeStory(t, smallStory)

	require.NoError(t, runValidate(cmd, []string{path}))
	assert.Contains(t, out.String(), `"Small", 3 panels`)
	assert.Contains(t, out.String(), "ask")
	assert.Contains(t, out.String(), "wait")
}

func TestValidateRejectsBrokenStory(t *testing.T) {
	cmd, out := testCmd()
	path := writeStory(t, "title: x\npanels:\n  - {id: a, kind: poster}\n")

	err := runValidate(cmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, out.String(), "unknown panel kind")
}

func TestFramesWritesEveryPanelAndBaselines(t *testing.T) {
	storyPath = writeStory(t, smallStory)
	defer func() { storyPath = "" }()

	dir := t.TempDir()
	opts := framesOptions{
		out:       filepath.Join(dir, "out"),
		baseline:  filepath.Join(dir, "baseline"),
		width:     60,
		height:    20,
		tolerance: 0.05,
		report:    true,
	}

	cmd, out := testCmd()
	require.NoError(t, runFrames(cmd, opts))
	for _, name := range []string{"00_intro", "01_ask", "02_end"} {
		_, err := os.Stat(filepath.Join(opts.out, name+".png"))
		assert.NoError(t, err, name)
		_, err = os.Stat(filepath.Join(opts.baseline, name+".png"))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, 3, strings.Count(out.String(), "baseline written"))
	assert.Contains(t, out.String(), "index.html")

	cmd, out = testCmd()
	require.NoError(t, runFrames(cmd, opts))
	assert.Equal(t, 3, strings.Count(out.String(), "matches baseline"))
}

func TestFramesReportsRegressions(t *testing.T) {
	dir := t.TempDir()
	opts := framesOptions{
		out:       filepath.Join(dir, "out"),
		baseline:  filepath.Join(dir, "baseline"),
		width:     60,
		height:    20,
		tolerance: 0,
	}

	storyPath = writeStory(t, smallStory)
	defer func() { storyPath = "" }()
	cmd, _ := testCmd()
	require.NoError(t, runFrames(cmd, opts))

	storyPath = writeStory(t, strings.Replace(smallStory, "title: Small}", "title: Different}", 1))
	cmd, out := testCmd()
	err := runFrames(cmd, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 frames")
	assert.Contains(t, out.String(), "REGRESSED")
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("", true)
	require.NoError(t, err)
	assert.NotNil(t, l)

	path := filepath.Join(t.TempDir(), "dolly.log")
	l, err = newLogger(path, true)
	require.NoError(t, err)
	l.Debug("hello")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"logger":"dolly"`)
}

func TestRestProgress(t *testing.T) {
	s, err := loadStory(writeStory(t, smallStory))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, restProgress(s.Panels[0]), 1e-9)
	assert.InDelta(t, 0.695, restProgress(s.Panels[2]), 1e-9)

	s, err = loadStory("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Panels, "bundled story")
}
