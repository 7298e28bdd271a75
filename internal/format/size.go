package format

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators ("1,048,576").
func FormatCount(n uint64) string {
	return printer.Sprintf("%d", n)
}

// FormatBytes renders a byte count using binary units ("12.0 KiB").
//
// Example:
//
//	FormatBytes(512)    = "512 B"
//	FormatBytes(0x3000) = "12.0 KiB"
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return printer.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return printer.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
