package progress

import (
	"fmt"

	"github.com/gookit/color"
)

func tick() string {
	return color.Green.Sprint("✓")
}

// DownloadedLine formats the completion line for a fetched artifact.
func DownloadedLine(size int64, filename string) string {
	return fmt.Sprintf("%s Downloaded  %7s  %s", tick(), formatBytes(size), color.Gray.Sprint(filename))
}

// InstalledLine formats the completion line for an installed override.
func InstalledLine(name string) string {
	return fmt.Sprintf("%s Installed          %s", tick(), color.Gray.Sprint(name))
}
