package render

import (
	"context"
	"fmt"
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw paints the image into area with half-block cells, two image rows
// per terminal row. The image is scaled with nearest sampling to fit the
// area while keeping its aspect ratio; it is anchored at the top left.
func (img *Image) Draw(scr uv.Screen, area uv.Rectangle) {
	cols, rows := fitSize(img.Width, img.Height, area.Dx(), area.Dy()*2)
	if cols == 0 || rows == 0 {
		return
	}

	for row := 0; row*2 < rows; row++ {
		topY := row * 2
		botY := topY + 1

		for col := 0; col < cols; col++ {
			srcX := col * img.Width / cols
			top := img.RGBA(srcX, topY*img.Height/rows)

			var bot color.Color
			if botY < rows {
				bot = img.RGBA(srcX, botY*img.Height/rows)
			}

			scr.SetCell(area.Min.X+col, area.Min.Y+row, &uv.Cell{
				Content: "▀",
				Width:   1,
				Style:   uv.Style{Fg: top, Bg: bot},
			})
		}
	}
}

// fitSize scales w x h down or up to the largest size that fits in
// maxW x maxH with the same aspect ratio.
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	if w*maxH <= h*maxW {
		// Height bound
		return max(1, w*maxH/h), maxH
	}
	return maxW, max(1, h*maxW/w)
}

// Preview shows img in the terminal's alternate screen until the user
// presses q, escape or ctrl+c, or ctx is done.
func Preview(ctx context.Context, img *Image) error {
	term := uv.DefaultTerminal()

	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}

	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	defer func() {
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}()

	draw := func() error {
		term.Draw(img)
		if err := term.Display(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		return nil
	}
	if err := draw(); err != nil {
		return err
	}

	events := term.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				term.Erase()
				term.Resize(ev.Width, ev.Height)
				if err := draw(); err != nil {
					return err
				}
			case uv.KeyPressEvent:
				if ev.MatchString("q", "escape", "ctrl+c") {
					return nil
				}
			}
		}
	}
}
