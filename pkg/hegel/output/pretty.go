package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using
// lipgloss, for interactive terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Title != "" {
		w.WriteString(HeaderBox.Render(TitleStyle.Render(r.Title)))
		w.WriteString("\n")
	}
	if len(r.Instruments) > 0 {
		f.formatInstruments(w, r.Instruments)
	}
	if len(r.Readings) > 0 {
		f.formatReadings(w, r.Readings)
	}
	if len(r.Files) > 0 {
		f.formatFiles(w, r)
	}
	if len(r.Runs) > 0 {
		f.formatRuns(w, r.Runs)
	}
	for _, note := range r.Notes {
		w.WriteString(MutedStyle.Render(note))
		w.WriteString("\n")
	}
	return nil
}

func (f *PrettyFormatter) formatInstruments(w *bytes.Buffer, ins []Instrument) {
	for _, in := range ins {
		name := TitleStyle.Render(in.Name)
		id := strings.TrimSpace(in.Vendor + " " + in.Model)
		line := fmt.Sprintf("%s  %s", name, ValueStyle.Render(id))
		w.WriteString(line)
		w.WriteString("\n")
		w.WriteString(fmt.Sprintf("  %s %s  %s %s\n",
			LabelStyle.Render("resource:"), ValueStyle.Render(in.Resource),
			LabelStyle.Render("driver:"), ValueStyle.Render(in.Driver)))
		if len(in.Devices) > 0 {
			w.WriteString(fmt.Sprintf("  %s %s\n",
				LabelStyle.Render("devices:"),
				MutedStyle.Render(strings.Join(in.Devices, ", "))))
		}
	}
}

func (f *PrettyFormatter) formatReadings(w *bytes.Buffer, readings []Reading) {
	nameWidth := 0
	for _, rd := range readings {
		if len(rd.Device) > nameWidth {
			nameWidth = len(rd.Device)
		}
	}
	for _, rd := range readings {
		val := NumberStyle.Render(strconv.FormatFloat(rd.Value, 'g', -1, 64))
		line := fmt.Sprintf("%s  %s", padRight(rd.Device, nameWidth), val)
		if rd.Unit != "" {
			line += " " + MutedStyle.Render(rd.Unit)
		}
		w.WriteString(line)
		w.WriteString("\n")
	}
}

func (f *PrettyFormatter) formatFiles(w *bytes.Buffer, r *Report) {
	w.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("SIZE", 9)),
		TableHeaderStyle.Render(padRight("MODIFIED", 14)),
		TableHeaderStyle.Render("PATH")))
	for _, file := range r.Files {
		w.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			NumberStyle.Render(padRight(file.SizeHuman, 9)),
			MutedStyle.Render(padRight(humanize.Time(file.ModTime), 14)),
			ValueStyle.Render(file.Path)))
	}
	summary := fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Files:"), ValueStyle.Render(strconv.Itoa(len(r.Files))),
		LabelStyle.Render("Total:"), NumberStyle.Render(humanize.IBytes(uint64(r.TotalSize()))))
	w.WriteString(FooterBox.Render(summary))
	w.WriteString("\n")
}

func (f *PrettyFormatter) formatRuns(w *bytes.Buffer, runs []RunInfo) {
	w.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("WHEN", 14)),
		TableHeaderStyle.Render(padRight("KIND", 6)),
		TableHeaderStyle.Render(padRight("POINTS", 6)),
		TableHeaderStyle.Render(padRight("DEVICES", 24)),
		TableHeaderStyle.Render("FILE")))
	for _, run := range runs {
		w.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s\n",
			MutedStyle.Render(padRight(humanize.Time(run.Start), 14)),
			ValueStyle.Render(padRight(run.Kind, 6)),
			NumberStyle.Render(padRight(strconv.Itoa(run.Points), 6)),
			ValueStyle.Render(padRight(strings.Join(run.Devices, ","), 24)),
			MutedStyle.Render(run.Filename)))
	}
}

// padRight pads a string with spaces to the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// FormatDuration renders a duration in a human-friendly way for the
// pretty and plain formatters.
func FormatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
