package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/moffa90/go-qdl/device"
)

// progressPrinter renders device progress as a bar, one line per 5% step
// or phase change.
type progressPrinter struct {
	w     io.Writer
	width int
	phase string
	label string
	step  int
}

func newProgressPrinter(w io.Writer, width int) *progressPrinter {
	return &progressPrinter{w: w, width: width, step: -1}
}

func (p *progressPrinter) bar(percentage float64) string {
	filled := int(float64(p.width) * percentage / 100.0)
	if filled > p.width {
		filled = p.width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", p.width-filled) + "]"
}

func (p *progressPrinter) report(pr device.Progress) {
	step := int(pr.Percentage) / 5
	if pr.Phase == p.phase && pr.Partition == p.label && step == p.step {
		return
	}
	p.phase, p.label, p.step = pr.Phase, pr.Partition, step

	label := pr.Partition
	if label == "" {
		label = "-"
	}
	fmt.Fprintf(p.w, "%-10s %-14s %s %5.1f%% %s\n",
		pr.Phase, label, p.bar(pr.Percentage), pr.Percentage, formatBytes(pr.BytesWritten))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
