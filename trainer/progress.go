package main

import (
	"io"

	"github.com/animus-labs/animus-tracking/internal/platform/logging"
	"github.com/schollz/progressbar/v3"
)

// newProgress returns a tree-fit callback drawing a progress bar on w, or
// nil when w is not a terminal.
func newProgress(w io.Writer, total int) func(done, total int) {
	if !logging.IsTerminal(w) {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("fitting trees"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(done, _ int) {
		_ = bar.Set(done)
	}
}
