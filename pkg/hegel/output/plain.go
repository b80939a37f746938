package output

import (
	"bytes"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// PlainFormatter formats output as simple aligned text with no colors
// or styling, suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, in := range r.Instruments {
		idn := strings.TrimSpace(in.Vendor + " " + in.Model)
		line := in.Name + "\t" + in.Resource + "\t" + in.Driver + "\t" + idn
		if len(in.Devices) > 0 {
			line += "\t" + strings.Join(in.Devices, ",")
		}
		if _, err := tw.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	for _, rd := range r.Readings {
		line := rd.Device + "\t" + strconv.FormatFloat(rd.Value, 'g', -1, 64)
		if rd.Unit != "" {
			line += "\t" + rd.Unit
		}
		if _, err := tw.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	for _, file := range r.Files {
		line := strconv.FormatInt(file.Size, 10) + "\t" +
			file.ModTime.Format(time.RFC3339) + "\t" + file.Path
		if _, err := tw.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	for _, run := range r.Runs {
		line := run.ID + "\t" + run.Kind + "\t" +
			strconv.Itoa(run.Points) + "\t" +
			run.Start.Format(time.RFC3339) + "\t" + run.Filename
		if _, err := tw.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
	// "table" is an alias kept for muscle memory.
	Register("table", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
