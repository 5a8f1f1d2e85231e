package points

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrExhaustedSearchSpace = errors.New("no free point within scan limit")
	ErrInvalidScanLimit     = errors.New("scan limit must be positive")
)

// ActivityOracle answers whether a point has been spawned. It is the only
// source of truth the scanner consults.
type ActivityOracle interface {
	IsActive(ctx context.Context, p Point) (bool, error)
}

// ActivityFunc adapts a function to ActivityOracle.
type ActivityFunc func(ctx context.Context, p Point) (bool, error)

func (f ActivityFunc) IsActive(ctx context.Context, p Point) (bool, error) {
	return f(ctx, p)
}

// FindFreePoint probes parent + i*step(size) for i in [0, scanLimit) and
// returns the first candidate the oracle reports inactive. The lowest free
// offset always wins, so allocation is reproducible across runs.
//
// The result is only a candidate: another account may claim it before the
// caller's spawn transaction lands.
func FindFreePoint(ctx context.Context, oracle ActivityOracle, parent Point, size Size, scanLimit int) (Point, error) {
	if scanLimit <= 0 {
		return 0, ErrInvalidScanLimit
	}
	for i := 0; i < scanLimit; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		candidate, err := Child(parent, size, uint32(i))
		if errors.Is(err, ErrOutOfRange) {
			break
		}
		if err != nil {
			return 0, err
		}

		active, err := oracle.IsActive(ctx, candidate)
		if err != nil {
			return 0, fmt.Errorf("check point %d: %w", candidate, err)
		}
		if !active {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w: parent %d, %s, limit %d", ErrExhaustedSearchSpace, parent, size, scanLimit)
}
