package transcript

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

type Entry struct {
	Start     time.Duration `json:"-"`
	Timestamp string        `json:"time"`
	Text      string        `json:"text"`
}

type format int

const (
	formatUnknown format = iota
	formatWebVTT
	formatSRT
)

func sniff(text string) format {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "WEBVTT") {
		return formatWebVTT
	}

	// SRT: a numeric cue index followed by a timing line.
	sc := bufio.NewScanner(strings.NewReader(text))
	var lines []string
	for sc.Scan() && len(lines) < 2 {
		line := strings.TrimSpace(sc.Text())
		if line == "" && len(lines) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 2 {
		if _, err := strconv.Atoi(lines[0]); err == nil && strings.Contains(lines[1], "-->") {
			return formatSRT
		}
	}
	return formatUnknown
}

// Parse turns a WebVTT or SRT document into entries. It reports false when
// the text is not a subtitle track, cannot be parsed, or has no cues.
func Parse(text string) ([]Entry, bool) {
	var (
		subs *astisub.Subtitles
		err  error
	)
	r := strings.NewReader(strings.TrimPrefix(text, "\ufeff"))
	switch sniff(text) {
	case formatWebVTT:
		subs, err = astisub.ReadFromWebVTT(r)
	case formatSRT:
		subs, err = astisub.ReadFromSRT(r)
	default:
		return nil, false
	}
	if err != nil || subs == nil {
		return nil, false
	}

	entries := make([]Entry, 0, len(subs.Items))
	for _, item := range subs.Items {
		var parts []string
		for _, line := range item.Lines {
			var b strings.Builder
			for _, li := range line.Items {
				b.WriteString(li.Text)
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			continue
		}
		entries = append(entries, Entry{
			Start:     item.StartAt,
			Timestamp: formatTimestamp(item.StartAt),
			Text:      strings.Join(parts, " "),
		})
	}

	if len(entries) == 0 {
		return nil, false
	}
	return entries, true
}

// formatTimestamp renders mm:ss with minutes allowed past 59.
func formatTimestamp(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
