package instrument

import (
	"context"
	"sync"
)

// Group reads a set of devices in parallel across instruments. Devices
// on the same instrument are read sequentially in add order, so each
// session stays serialized, while instruments proceed concurrently and
// their wait times overlap. A Group is one-shot: build, Go, discard.
type Group struct {
	devices []*Device
}

// Add appends a device to the group. Results come back in add order.
func (g *Group) Add(devs ...*Device) {
	g.devices = append(g.devices, devs...)
}

// Len returns the number of devices in the group.
func (g *Group) Len() int { return len(g.devices) }

// Go performs the parallel read. The first error cancels the remaining
// reads and is returned; on success the values are in add order.
func (g *Group) Go(ctx context.Context) ([]float64, error) {
	if len(g.devices) == 0 {
		return nil, nil
	}

	// Partition by instrument, keeping each device's result slot.
	type slot struct {
		dev *Device
		idx int
	}
	perInstr := make(map[string][]slot)
	var order []string
	for i, d := range g.devices {
		key := d.Instrument()
		if _, seen := perInstr[key]; !seen {
			order = append(order, key)
		}
		perInstr[key] = append(perInstr[key], slot{dev: d, idx: i})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]float64, len(g.devices))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, key := range order {
		slots := perInstr[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, s := range slots {
				if ctx.Err() != nil {
					return
				}
				v, err := s.dev.Get(ctx)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
				results[s.idx] = v
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// ReadDevices is the sequential counterpart to Group.Go, reading the
// devices one after another in order.
func ReadDevices(ctx context.Context, devs []*Device) ([]float64, error) {
	out := make([]float64, len(devs))
	for i, d := range devs {
		v, err := d.Get(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
