package comm

import "context"

// Source is anything a pipeline can be fed from. YieldData follows the
// Subscriber contract: ok == false means exhausted, an error means broken.
type Source interface {
	YieldData(ctx context.Context) (Item, bool, error)
	PromiseData() bool
}

var _ Source = (*Subscriber)(nil)

// Pump feeds src into sub until src is exhausted, then shuts sub gracefully
// and waits for it to drain. On failure sub is forced. It returns the number
// of items transmitted.
func Pump(ctx context.Context, src Source, sub *Subscriber) (int, error) {
	n := 0
	for {
		item, ok, err := src.YieldData(ctx)
		if err != nil {
			_ = sub.Shutdown(ctx, true)
			return n, err
		}
		if !ok {
			return n, sub.Shutdown(ctx, false)
		}
		if err := sub.Transmit(ctx, item.ID, item.Package); err != nil {
			_ = sub.Shutdown(ctx, true)
			return n, err
		}
		n++
	}
}
