package walker

import (
	"path/filepath"
	"strings"
)

// Format is the markup of a knowledge source.
type Format string

const (
	FormatUnknown  Format = ""
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

var extensionToFormat = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdx":      FormatMarkdown,
	".txt":      FormatText,
	".text":     FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// DetectFormat returns the format implied by the file extension, or
// FormatUnknown for anything that is not a supported text source.
func DetectFormat(path string) Format {
	return extensionToFormat[strings.ToLower(filepath.Ext(path))]
}
