package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/harmonica"
)

// Progress counts finished rows. Workers call Add; Run draws a bar whose
// displayed fraction follows the real one through a critically damped
// spring, so bursts of rows finishing at once do not make it jump.
type Progress struct {
	Width int // Bar width in characters

	total int64
	done  atomic.Int64

	fps    int
	spring harmonica.Spring
	shown  float64
	vel    float64
}

// NewProgress creates a counter for total rows, animated at fps frames
// per second.
func NewProgress(total, fps int) *Progress {
	if fps <= 0 {
		fps = 30
	}
	return &Progress{
		Width:  40,
		total:  int64(total),
		fps:    fps,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Add records n more finished rows. Safe for concurrent use.
func (p *Progress) Add(n int) {
	p.done.Add(int64(n))
}

// Done returns the number of finished rows.
func (p *Progress) Done() int64 {
	return p.done.Load()
}

// Fraction returns the finished share in [0, 1].
func (p *Progress) Fraction() float64 {
	if p.total <= 0 {
		return 1
	}
	return min(1, float64(p.done.Load())/float64(p.total))
}

// Step advances the spring by one frame and returns the fraction to show.
// Only the goroutine drawing the bar may call it.
func (p *Progress) Step() float64 {
	p.shown, p.vel = p.spring.Update(p.shown, p.vel, p.Fraction())
	return max(0, min(1, p.shown))
}

func (p *Progress) bar(frac float64) string {
	filled := int(frac * float64(p.Width))
	return fmt.Sprintf("[%s%s] %3.0f%% (%d/%d rows)",
		strings.Repeat("#", filled), strings.Repeat("-", p.Width-filled),
		frac*100, p.done.Load(), p.total)
}

// Run redraws the bar on w until ctx is done, then draws the real final
// state and ends the line.
func (p *Progress) Run(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s\n", p.bar(p.Fraction()))
			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s", p.bar(p.Step()))
		}
	}
}
