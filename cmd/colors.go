package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "succeeded", "pass", "good":
		return colorSuccess(status)
	case "queued", "running", "warn", "weak":
		return colorWarn(status)
	case "error", "fail", "failed", "missing":
		return colorError(status)
	default:
		return status
	}
}
