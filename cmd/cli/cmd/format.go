package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case "Success":
		return colorGreen + "✓" + colorReset
	case "Failed":
		return colorYellow + "↻" + colorReset
	case "Dead":
		return colorRed + "✗" + colorReset
	case "Running":
		return colorYellow + "⏳" + colorReset
	case "Pending", "Scheduled":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case "Success":
		return icon + " " + colorGreen + state + colorReset
	case "Dead":
		return icon + " " + colorRed + state + colorReset
	case "Failed", "Running":
		return icon + " " + colorYellow + state + colorReset
	case "Pending", "Scheduled":
		return icon + " " + colorCyan + state + colorReset
	default:
		return state
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, humanize.Time(*t), colorReset)
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
