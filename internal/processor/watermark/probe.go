package watermark

import (
	"context"
	"encoding/json"
	"fmt"
)

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads the frame size of the first video stream.
func (inv *Invoker) Probe(ctx context.Context, path string) (*FrameSize, error) {
	if inv.cfg.FFprobePath == "" {
		return nil, fmt.Errorf("%w: ffprobe disabled", ErrProbeFailed)
	}
	out, err := inv.probe(ctx, inv.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*FrameSize, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", ErrProbeFailed, err)
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return &FrameSize{Width: s.Width, Height: s.Height}, nil
		}
	}
	return nil, fmt.Errorf("%w: no video stream", ErrProbeFailed)
}
