package capture

import (
	"github.com/smazurov/v4l2cast/internal/device"
)

// Config describes a camera and encoder pair.
type Config struct {
	Camera  CameraConfig
	Encoder EncoderConfig
}

// Open negotiates the camera, feeds the geometry the camera driver settled
// on to the encoder input, and returns an unstarted pipeline. On failure
// every buffer allocated so far is released; the devices stay open.
func Open(cam, enc device.Device, cfg Config) (*Pipeline, error) {
	camera, err := OpenCamera(cam, cfg.Camera)
	if err != nil {
		return nil, err
	}

	ecfg := cfg.Encoder
	ecfg.Input = camera.Format()
	if ecfg.FPS == 0 {
		ecfg.FPS = camera.FrameRate()
	}
	encoder, err := OpenEncoder(enc, ecfg)
	if err != nil {
		_ = camera.Close()
		return nil, err
	}

	if in := encoder.InputFormat(); in.Width != camera.Format().Width || in.Height != camera.Format().Height {
		camera.logger.Warn("Encoder input geometry differs from camera",
			"camera", camera.Format().String(), "encoder_input", in.String())
	}
	return NewPipeline(camera, encoder), nil
}
