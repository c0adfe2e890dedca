package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the worker startup banner to stderr.
func PrintBanner(workerID, mode string, pollInterval string) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 62
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` 888       888  .d88888b.  8888888b.  888    d8P  8888888888 8888888b.`,
		` 888   o   888 d88P" "Y88b 888   Y88b 888   d8P   888        888   Y88b`,
		` 888  d8b  888 888     888 888    888 888  d8P    888        888    888`,
		` 888 d888b 888 888     888 888   d88P 888d88K     8888888    888   d88P`,
		` 888d88888b888 888     888 8888888P"  8888888b    888        8888888P"`,
		` 88888P Y88888 888     888 888 T88b   888  Y88b   888        888 T88b`,
		` 8888P   Y8888 Y88b. .d88P 888  T88b  888   Y88b  888        888  T88b`,
		` 888P     Y888  "Y88888P"  888   T88b 888    Y88b 8888888888 888   T88b`,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  PDF bid/shop-drawing worker%s\n\n%s\n\n", textColor, banner.ColorReset, hr)

	kvPad := 14
	kvLines := [][2]string{
		{"Worker ID", workerID},
		{"Mode", mode},
		{"Poll interval", pollInterval},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
}

// PrintShutdownBanner displays the shutdown banner to stderr.
func PrintShutdownBanner() {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 42) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n%s  WORKER — SHUTTING DOWN%s\n%s\n\n", hr, textColor, banner.ColorReset, hr)
}
