// Package gpio contains drivers for I2C port expanders.
package gpio

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/nxtsensors"
)

const defaultRetryLimit = 2

// retry runs op until it succeeds, fails with something other than a busy
// bus, or the retry limit is reached. The bus is released between attempts.
func retry(ctx context.Context, bus nxtsensors.I2CBus, limit int, what string, op func() error) error {
	var err error
	for i := limit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, nxtsensors.ErrBusBusy) {
			return fmt.Errorf("could not %s: %w", what, err)
		}
		// try to release the bus
		_ = bus.Release(ctx)
	}
	return fmt.Errorf("could not %s (retry limit reached): %w", what, err)
}
