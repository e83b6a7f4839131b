package client

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recipebox/recipebox/progress"
)

// recorder collects every update published on a bus.
type recorder struct {
	mu      sync.Mutex
	updates []progress.Update
}

func record(bus *progress.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(u progress.Update) {
		r.mu.Lock()
		r.updates = append(r.updates, u)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) trail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.String()
	}
	return out
}

func (r *recorder) all() []progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Update(nil), r.updates...)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 10), B: uint8(y * 15), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
