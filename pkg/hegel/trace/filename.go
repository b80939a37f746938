// Package trace writes and reads measurement data files: `#`-commented
// headers carrying the instrument state, tab-separated float rows, and
// the templated, collision-avoiding filenames the sweep and record
// engines save under.
package trace

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	percentIRe = regexp.MustCompile(`%(0?\d*)i`)
	namedRe    = regexp.MustCompile(`\{(datetime|date|time|next_i)(?::0?(\d+))?\}`)
)

// Namer expands filename templates. Placeholders:
//
//	%T              date-time stamp like 20260831-173000
//	%D              date part, 20260831
//	%t              time part, 173000
//	%i, %02i, %03i  auto-incrementing counter, probed upward until the
//	                name does not collide with an existing file
//	{datetime} {date} {time}  named stamp equivalents
//	{next_i:02}     current counter value, zero padded, no probing
//
// The counter state is shared so consecutive runs number their files
// consecutively. Safe for concurrent use.
type Namer struct {
	mu    sync.Mutex
	nextI int
}

// NewNamer builds a namer whose counter starts at start.
func NewNamer(start int) *Namer { return &Namer{nextI: start} }

// NextI returns the counter value the next expansion will use first.
func (n *Namer) NextI() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nextI
}

// SetNextI resets the counter.
func (n *Namer) SetNextI(i int) {
	n.mu.Lock()
	n.nextI = i
	n.mu.Unlock()
}

// Process expands the template against now and returns the resulting
// filename plus the counter value used (zero when the template has no
// counter). A `%i` counter is probed upward from the shared counter
// until no file of that name exists, so an expansion never names an
// existing file; `{next_i}` substitutes the counter without probing.
// Either form advances the shared counter past the value used.
func (n *Namer) Process(tmpl string, now time.Time) (string, int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dateStamp := now.Format("20060102")
	timeStamp := now.Format("150405")
	dtStamp := dateStamp + "-" + timeStamp

	counterUsed := false
	counter := n.nextI

	name := namedRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := namedRe.FindStringSubmatch(m)
		switch sub[1] {
		case "datetime":
			return dtStamp
		case "date":
			return dateStamp
		case "time":
			return timeStamp
		default: // next_i
			counterUsed = true
			width := 1
			if sub[2] != "" {
				width, _ = strconv.Atoi(sub[2])
			}
			return fmt.Sprintf("%0*d", width, counter)
		}
	})

	name = strings.ReplaceAll(name, "%T", dtStamp)
	name = strings.ReplaceAll(name, "%D", dateStamp)
	name = strings.ReplaceAll(name, "%t", timeStamp)

	if m := percentIRe.FindStringSubmatch(name); m != nil {
		width := 1
		if m[1] != "" {
			width, _ = strconv.Atoi(m[1])
		}
		pattern := percentIRe.ReplaceAllString(name, "%s")

		i := counter
		for {
			candidate := fmt.Sprintf(pattern, fmt.Sprintf("%0*d", width, i))
			_, err := os.Stat(candidate)
			if os.IsNotExist(err) {
				name = candidate
				break
			}
			if err != nil {
				return "", 0, fmt.Errorf("probe %s: %w", candidate, err)
			}
			i++
		}
		counter = i
		counterUsed = true
	}

	if counterUsed {
		n.nextI = counter + 1
	}
	return name, counter, nil
}

// DefaultNamer is the counter shared by the sweep and record engines.
var DefaultNamer = NewNamer(0)

// ProcessFilename expands tmpl with the shared namer at the current time.
func ProcessFilename(tmpl string) (string, int, error) {
	return DefaultNamer.Process(tmpl, time.Now())
}
