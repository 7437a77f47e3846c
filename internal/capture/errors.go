package capture

import "errors"

// ErrPipelineFailed is returned by TakeFrame after an earlier I/O failure.
// Buffer ownership is undefined at that point; the devices must be
// recreated from scratch.
var ErrPipelineFailed = errors.New("capture pipeline failed; recreate the devices")
