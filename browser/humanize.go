package browser

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// humanize performs a short burst of human-looking interaction: random
// mouse moves, a hover, light scrolling and the occasional key press,
// over 1–3 s. Every step is best-effort; errors are swallowed and the
// supplied context bounds the whole thing.
func humanize(ctx context.Context, pg *rod.Page) {
	total := time.Duration(1000+rand.IntN(2000)) * time.Millisecond
	deadline := time.Now().Add(total)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		switch rand.IntN(5) {
		case 0, 1: // mouse drift
			_ = pg.Mouse.MoveTo(proto.Point{
				X: 100 + rand.Float64()*1200,
				Y: 80 + rand.Float64()*700,
			})
		case 2: // light scroll
			_ = pg.Mouse.Scroll(0, 120+rand.Float64()*400, 3)
		case 3: // hover a link if one is around
			if els, err := pg.Timeout(300 * time.Millisecond).Elements("a"); err == nil && len(els) > 0 {
				_ = els[rand.IntN(len(els))].Hover()
			}
		case 4: // occasional key press
			_ = pg.Keyboard.Press(input.ArrowDown)
		}

		pause := time.Duration(80+rand.IntN(260)) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}
