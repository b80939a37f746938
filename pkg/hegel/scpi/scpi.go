// Package scpi implements IEEE 488.2 / SCPI protocol helpers shared by
// all instrument drivers: identification parsing, number and boolean
// codecs, error queue draining, and operation-complete synchronization.
package scpi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Querier is the transport subset the protocol helpers need. Both
// visa.Session and test fakes satisfy it.
type Querier interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
}

// IDN is the parsed reply to *IDN?.
type IDN struct {
	Vendor   string
	Model    string
	Serial   string
	Firmware string
}

// String renders the IDN back into its wire form.
func (i IDN) String() string {
	return strings.Join([]string{i.Vendor, i.Model, i.Serial, i.Firmware}, ",")
}

// ParseIDN splits a *IDN? reply. Instruments that return fewer than
// four fields get empty strings for the missing ones.
func ParseIDN(reply string) IDN {
	parts := strings.SplitN(reply, ",", 4)
	var idn IDN
	get := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}
	idn.Vendor = get(0)
	idn.Model = get(1)
	idn.Serial = get(2)
	idn.Firmware = get(3)
	return idn
}

// QueryIDN asks the instrument to identify itself.
func QueryIDN(ctx context.Context, q Querier) (IDN, error) {
	reply, err := q.Query(ctx, "*IDN?")
	if err != nil {
		return IDN{}, fmt.Errorf("identify: %w", err)
	}
	return ParseIDN(reply), nil
}

// NotANumber is the SCPI sentinel instruments return for an invalid
// measurement (9.91E37 per SCPI-99 vol 1, 7.2.1).
const NotANumber = 9.91e37

// ParseFloat parses a SCPI numeric reply. The 9.91E37 sentinel maps to
// NaN, and +/-9.9E37 map to the infinities.
func ParseFloat(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q as number: %w", reply, err)
	}
	switch {
	case v == NotANumber:
		return math.NaN(), nil
	case v >= 9.9e37:
		return math.Inf(1), nil
	case v <= -9.9e37:
		return math.Inf(-1), nil
	}
	return v, nil
}

// FormatFloat renders a value for a SCPI command. NaN becomes the
// 9.91E37 sentinel so a round-trip is lossless.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "9.91E+37"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseBool parses a SCPI boolean reply (0/1/ON/OFF).
func ParseBool(reply string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("parsing %q as boolean", reply)
	}
}

// FormatBool renders a boolean for a SCPI command.
func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Error is one entry from the instrument error queue.
type Error struct {
	Code    int
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// ParseError parses a SYST:ERR? reply of the form `-113,"Undefined header"`.
func ParseError(reply string) (Error, error) {
	code, msg, ok := strings.Cut(strings.TrimSpace(reply), ",")
	if !ok {
		return Error{}, fmt.Errorf("malformed error reply %q", reply)
	}
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return Error{}, fmt.Errorf("malformed error code in %q: %w", reply, err)
	}
	msg = strings.TrimSpace(msg)
	msg = strings.Trim(msg, `"`)
	return Error{Code: n, Message: msg}, nil
}

// maxErrorQueue bounds DrainErrors against an instrument that never
// reports an empty queue.
const maxErrorQueue = 50

// DrainErrors reads the instrument error queue until it reports
// `0,"No error"`. The collected entries are returned; an empty slice
// means the instrument was clean.
func DrainErrors(ctx context.Context, q Querier) ([]Error, error) {
	var errs []Error
	for i := 0; i < maxErrorQueue; i++ {
		reply, err := q.Query(ctx, "SYST:ERR?")
		if err != nil {
			return errs, err
		}
		e, err := ParseError(reply)
		if err != nil {
			return errs, err
		}
		if e.Code == 0 {
			return errs, nil
		}
		errs = append(errs, e)
	}
	return errs, errors.New("error queue did not drain")
}

// CheckErrors drains the error queue and returns the first entry as an
// error, nil when the queue was clean.
func CheckErrors(ctx context.Context, q Querier) error {
	errs, err := DrainErrors(ctx, q)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// WaitOPC arms *OPC and polls the event status register until the
// operation-complete bit is set. Each poll is a short exchange, so the
// transport timeout never fires no matter how long the instrument
// takes, and ctx cancellation (CTRL-C) interrupts the wait promptly.
func WaitOPC(ctx context.Context, q Querier, poll time.Duration) error {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}

	if err := q.Write(ctx, "*OPC"); err != nil {
		return fmt.Errorf("arming OPC: %w", err)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		reply, err := q.Query(ctx, "*ESR?")
		if err != nil {
			return fmt.Errorf("polling ESR: %w", err)
		}
		esr, err := strconv.Atoi(strings.TrimSpace(reply))
		if err != nil {
			return fmt.Errorf("parsing ESR reply %q: %w", reply, err)
		}
		if esr&1 != 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for operation complete: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
