package trace

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// File is a parsed data file.
type File struct {
	// Comments holds every `#` line except the column header, with the
	// marker stripped.
	Comments []string

	// Columns is the column-name row, when the file has one.
	Columns []string

	Rows [][]float64
}

// ReadFile parses a file written by Writer back into columns and rows.
// The last comment line before the first data row is taken as the
// column header when its field count matches the data.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out         File
		lastComment string
		lineNo      int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			text := strings.TrimPrefix(strings.TrimPrefix(line, "#"), " ")
			if len(out.Rows) == 0 {
				if lastComment != "" {
					out.Comments = append(out.Comments, lastComment)
				}
				lastComment = text
			} else {
				out.Comments = append(out.Comments, text)
			}
			continue
		}

		fields := strings.Split(line, "\t")
		row := make([]float64, len(fields))
		for i, fld := range fields {
			v, err := ParseValue(fld)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad value %q: %w", path, lineNo, fld, err)
			}
			row[i] = v
		}
		if len(out.Rows) == 0 && lastComment != "" {
			cols := strings.Split(lastComment, "\t")
			if len(cols) == len(row) {
				out.Columns = cols
			} else {
				out.Comments = append(out.Comments, lastComment)
			}
			lastComment = ""
		}
		out.Rows = append(out.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if lastComment != "" {
		out.Comments = append(out.Comments, lastComment)
	}
	return &out, nil
}
