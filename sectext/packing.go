package sectext

import (
	"fmt"
	"strconv"
	"strings"
)

// PackConfig describes packed files: windows of W consecutive record
// indices stored in one file, each record introduced by a marker line.
//
// Window N of width W holds indices N*W+1 through N*W+W and is stored as
// "<start>-<end><Extension>", both bounds zero-padded to Digits.
type PackConfig struct {
	Digits       int    // zero padding of filenames and default markers (default 4)
	Extension    string // filename extension including the dot (default ".txt")
	MarkerPrefix string // default "[ "
	MarkerSuffix string // default " ]"
	Spacing      int    // blank lines after each record

	// ParseIndex decodes the token between prefix and suffix. Default:
	// decimal integer.
	ParseIndex func(token string) (int, error)

	// FormatIndex encodes an index for a marker. Default: decimal
	// zero-padded to Digits.
	FormatIndex func(index int) string
}

// DefaultPackConfig returns the default packing layout with one blank
// line between records.
func DefaultPackConfig() PackConfig {
	return PackConfig{Spacing: 1}.withDefaults()
}

func (pc PackConfig) withDefaults() PackConfig {
	if pc.Digits <= 0 {
		pc.Digits = 4
	}
	if pc.Extension == "" {
		pc.Extension = ".txt"
	}
	if pc.MarkerPrefix == "" {
		pc.MarkerPrefix = "[ "
	}
	if pc.MarkerSuffix == "" {
		pc.MarkerSuffix = " ]"
	}
	if pc.Spacing < 0 {
		pc.Spacing = 0
	}
	if pc.ParseIndex == nil {
		pc.ParseIndex = func(token string) (int, error) {
			return strconv.Atoi(strings.TrimSpace(token))
		}
	}
	if pc.FormatIndex == nil {
		digits := pc.Digits
		pc.FormatIndex = func(index int) string {
			return fmt.Sprintf("%0*d", digits, index)
		}
	}
	return pc
}

// Window returns the inclusive index range of window n.
func (pc *PackConfig) Window(width, n int) (start, end int) {
	return n*width + 1, n*width + width
}

// WindowOf returns the window holding index for the given width.
func WindowOf(index, width int) int {
	if width <= 0 || index <= 0 {
		return 0
	}
	return (index - 1) / width
}

// InWindow reports whether index belongs to window n.
func (pc *PackConfig) InWindow(index, width, n int) bool {
	start, end := pc.Window(width, n)
	return index >= start && index <= end
}

// Filename returns the file name of window n.
func (pc *PackConfig) Filename(width, n int) string {
	start, end := pc.Window(width, n)
	return fmt.Sprintf("%0*d-%0*d%s", pc.Digits, start, pc.Digits, end, pc.Extension)
}

// ParseFilename recovers the index range from a window file name. Any
// compression suffix after the configured extension is ignored.
func (pc *PackConfig) ParseFilename(name string) (start, end int, ok bool) {
	i := strings.Index(name, pc.Extension)
	if i < 0 {
		return 0, 0, false
	}
	lo, hi, found := strings.Cut(name[:i], "-")
	if !found {
		return 0, 0, false
	}
	var err error
	if start, err = strconv.Atoi(lo); err != nil {
		return 0, 0, false
	}
	if end, err = strconv.Atoi(hi); err != nil {
		return 0, 0, false
	}
	if start < 1 || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// Marker returns the marker line for index.
func (pc *PackConfig) Marker(index int) string {
	return pc.MarkerPrefix + pc.FormatIndex(index) + pc.MarkerSuffix
}

// markerToken extracts the index token from a marker line. Surrounding
// space on the line and inside prefix/suffix is tolerated.
func (pc *PackConfig) markerToken(line string) (string, bool) {
	line = strings.TrimSpace(line)
	prefix := strings.TrimSpace(pc.MarkerPrefix)
	suffix := strings.TrimSpace(pc.MarkerSuffix)
	if len(line) < len(prefix)+len(suffix) || !strings.HasPrefix(line, prefix) || !strings.HasSuffix(line, suffix) {
		return "", false
	}
	token := strings.TrimSpace(line[len(prefix) : len(line)-len(suffix)])
	if token == "" {
		return "", false
	}
	return token, true
}

// IsMarker reports whether line is a pack marker line.
func (pc *PackConfig) IsMarker(line string) bool {
	_, ok := pc.markerToken(line)
	return ok
}
