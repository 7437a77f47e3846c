package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/v4l2cast/internal/capture"
	"github.com/smazurov/v4l2cast/internal/config"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
	"github.com/smazurov/v4l2cast/internal/streaming"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var frames int
	var output string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one capture session to an Annex-B file",
		Long: `Opens the camera and the encoder once, encodes frames and writes every NAL unit ` +
			`to the output as an H.264 Annex-B byte stream. Stops after --frames frames or on interrupt. ` +
			`Unlike the daemon it never restarts a failed session.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			logger := logging.GetLogger("capture")

			o := *opts
			o.OutputSink = streaming.KindFile
			if output != "" {
				o.OutputPath = output
			}
			if frames >= 0 {
				o.PipelineMaxFrames = frames
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := record(ctx, o)
			if err != nil {
				logger.Error("Recording failed", "error", err, "frames", stats.Frames)
				stop()
				os.Exit(1)
			}
			logger.Info("Recording finished", "frames", stats.Frames, "bytes", stats.Bytes, "units", stats.Units)
		}),
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", -1, "Frames to record, 0 records until interrupted (default: --max-frames)")
	cmd.Flags().StringVar(&output, "out", "", "Output file, - for stdout (default: --output)")

	return cmd
}

// record runs a single session described by opts.
func record(ctx context.Context, opts config.Options) (stats capture.Stats, err error) {
	cam, err := device.Open(opts.CameraDevice)
	if err != nil {
		return stats, err
	}
	defer cam.Close()

	enc, err := device.Open(opts.EncoderDevice)
	if err != nil {
		return stats, err
	}
	defer enc.Close()

	p, err := capture.Open(cam, enc, opts.CaptureConfig())
	if err != nil {
		return stats, err
	}
	defer func() {
		stats = p.Stats()
		err = errors.Join(err, p.Close())
	}()

	sink, err := streaming.New(opts.SinkConfig())
	if err != nil {
		return stats, fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close sink: %w", cerr))
		}
	}()

	var runOpts []capture.RunOption
	if opts.PipelineMaxFrames > 0 {
		runOpts = append(runOpts, capture.WithMaxFrames(uint64(opts.PipelineMaxFrames)))
	}
	if opts.PipelinePacing {
		runOpts = append(runOpts, capture.WithPacing())
	}
	return stats, p.Run(ctx, sink, runOpts...)
}
