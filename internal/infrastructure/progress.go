package infrastructure

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// ProgressParser turns one line of tool output into an optional percentage
type ProgressParser interface {
	Parse(line string) (float64, bool)
}

// PercentParser matches the first percentage in a line, e.g. "[download]  42.3% of 10MiB"
type PercentParser struct{}

var percentPattern = regexp.MustCompile(`\d{1,3}(\.\d+)?%`)

// Parse implements ProgressParser. Values are clamped to [0, 100]; order is not checked.
func (PercentParser) Parse(line string) (float64, bool) {
	match := percentPattern.FindString(line)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[:len(match)-1], 64)
	if err != nil {
		return 0, false
	}
	return domain.ClampPercent(value), true
}

// scanLines is a bufio.SplitFunc that splits on \n, \r and \r\n.
// yt-dlp redraws its progress line with \r when --newline is not honoured.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			} else if !atEOF {
				// need one more byte to tell \r from \r\n
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
