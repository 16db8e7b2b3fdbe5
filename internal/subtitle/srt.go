package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Dezexus/subvision/pkg/models"
)

// WriteSRT renders the collection as SubRip blocks:
//
//	index
//	HH:MM:SS,mmm --> HH:MM:SS,mmm
//	text
//
// Blocks are emitted in start order with 1-based sequential indices.
func WriteSRT(w io.Writer, items []models.Annotation) error {
	sorted := models.CloneAnnotations(items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	bw := bufio.NewWriter(w)
	for i, a := range sorted {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(a.Start), FormatTimestamp(a.End), a.Text)
	}
	return bw.Flush()
}

// ParseSRT reads SubRip blocks into an annotation collection. Indices in the
// file are ignored; IDs are assigned sequentially. Imported items carry full
// confidence and are not marked edited.
func ParseSRT(r io.Reader) ([]models.Annotation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var items []models.Annotation
	var nextID int64 = 1

	for {
		block, eof := readBlock(scanner)
		if len(block) > 0 {
			a, err := parseBlock(block)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", len(items)+1, err)
			}
			a.ID = nextID
			nextID++
			items = append(items, a)
		}
		if eof {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return items, nil
}

func readBlock(scanner *bufio.Scanner) (lines []string, eof bool) {
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if len(lines) > 0 {
				return lines, false
			}
			continue
		}
		lines = append(lines, line)
	}
	return lines, true
}

func parseBlock(lines []string) (models.Annotation, error) {
	// First line is the sequence index; tolerate blocks that omit it.
	i := 0
	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		i = 1
	}
	if i >= len(lines) {
		return models.Annotation{}, fmt.Errorf("missing timing line")
	}

	parts := strings.SplitN(lines[i], "-->", 2)
	if len(parts) != 2 {
		return models.Annotation{}, fmt.Errorf("malformed timing line %q", lines[i])
	}
	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return models.Annotation{}, err
	}
	end, err := ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return models.Annotation{}, err
	}
	if end <= start {
		return models.Annotation{}, fmt.Errorf("end %v not after start %v", end, start)
	}

	return models.Annotation{
		Start:      start,
		End:        end,
		Text:       strings.Join(lines[i+1:], "\n"),
		Confidence: 1.0,
	}, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp reads HH:MM:SS,mmm (a dot is tolerated) into seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.ReplaceAll(ts, ".", ",")
	var h, m, s, ms int
	if _, err := fmt.Sscanf(ts, "%d:%d:%d,%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000, nil
}
