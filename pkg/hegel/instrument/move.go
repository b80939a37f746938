package instrument

import (
	"context"
	"fmt"
	"math"
	"time"
)

// moveStepPeriod is how often Move issues an intermediate set.
const moveStepPeriod = 50 * time.Millisecond

// Move ramps a settable device from its current value to target at the
// given rate in units per second, issuing intermediate sets every step
// period. The current value comes from the cache when present and from
// the instrument otherwise. A non-positive rate jumps directly.
func Move(ctx context.Context, d *Device, target, rate float64) error {
	if !d.Settable() {
		return fmt.Errorf("%s: %w", d.FullName(), ErrNotSettable)
	}
	if rate <= 0 {
		return d.Set(ctx, target)
	}
	if err := d.Check(target); err != nil {
		return err
	}

	start, ok := d.Cache()
	if !ok {
		var err error
		start, err = d.Get(ctx)
		if err != nil {
			return err
		}
	}
	dist := target - start
	if dist == 0 {
		return d.Set(ctx, target)
	}

	step := rate * moveStepPeriod.Seconds() * math.Copysign(1, dist)
	steps := int(math.Ceil(math.Abs(dist) / math.Abs(step)))

	ticker := time.NewTicker(moveStepPeriod)
	defer ticker.Stop()
	for i := 1; i < steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := d.Set(ctx, start+float64(i)*step); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
	}
	return d.Set(ctx, target)
}
