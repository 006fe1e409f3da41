package watermark

import (
	"fmt"
	"math"
	"strings"
)

// FrameSize bounds regions when the source dimensions are known.
type FrameSize struct {
	Width  int
	Height int
}

type mask struct {
	x, y, w, h int
}

func roundHalfEven(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.RoundToEven(f)
	if r > math.MaxInt32 || r < math.MinInt32 {
		return 0, false
	}
	return int(r), true
}

func toMask(r Region, frame *FrameSize) (mask, bool) {
	if !r.Valid() {
		return mask{}, false
	}
	x, okX := roundHalfEven(r.X)
	y, okY := roundHalfEven(r.Y)
	w, okW := roundHalfEven(r.Width)
	h, okH := roundHalfEven(r.Height)
	if !okX || !okY || !okW || !okH {
		return mask{}, false
	}
	if w <= 0 || h <= 0 || x < 0 || y < 0 {
		return mask{}, false
	}
	if frame != nil && frame.Width > 0 && frame.Height > 0 {
		if x >= frame.Width || y >= frame.Height {
			return mask{}, false
		}
		w = min(w, frame.Width-x)
		h = min(h, frame.Height-y)
	}
	return mask{x: x, y: y, w: w, h: h}, true
}

// BuildFilterChain returns one delogo directive per usable region, in input
// order, followed by the sharpening stage. ok is false when no region
// survives, in which case the video is re-encoded without masking.
func BuildFilterChain(regions []Region) (chain string, ok bool) {
	return BuildFilterChainForFrame(regions, nil)
}

// BuildFilterChainForFrame additionally drops regions whose origin lies
// outside the frame and clips sizes to the frame edge.
func BuildFilterChainForFrame(regions []Region, frame *FrameSize) (string, bool) {
	steps := make([]string, 0, len(regions)+1)
	for _, r := range regions {
		m, ok := toMask(r, frame)
		if !ok {
			continue
		}
		steps = append(steps, fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d:show=0", m.x, m.y, m.w, m.h))
	}
	if len(steps) == 0 {
		return "", false
	}
	steps = append(steps, SharpenFilter)
	return strings.Join(steps, ","), true
}
