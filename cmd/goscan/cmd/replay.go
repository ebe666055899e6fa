package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/config"
)

// replayCmd runs the live preview loop over a replay camera.
var replayCmd = &cobra.Command{
	Use:   "replay [images or directories...]",
	Short: "Run the live scan loop over images served as camera frames",
	Long: `Serve the given images as camera preview frames and run the live scan
loop over them. Each frame is rotated into the simulated sensor orientation
and delivered as NV21, exactly as a camera would.

A decoded barcode stops the loop; the command prints it and resumes until
the images run out. With --once it stops at the first barcode.

Examples:
  goscan replay frames/
  goscan replay shot1.jpg shot2.jpg --rotation 270 --facing front
  goscan replay frames/ --loop --interval 100ms --once`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runReplayCommand,
}

// applyCameraFlags overrides the camera configuration with changed flags.
func applyCameraFlags(cfg *config.Config, cmd *cobra.Command) error {
	if cmd.Flags().Changed("rotation") {
		cfg.Camera.Rotation, _ = cmd.Flags().GetInt("rotation")
	}
	if cmd.Flags().Changed("display-rotation") {
		cfg.Camera.DisplayRotation, _ = cmd.Flags().GetInt("display-rotation")
	}
	if cmd.Flags().Changed("facing") {
		cfg.Camera.Facing, _ = cmd.Flags().GetString("facing")
	}
	if cmd.Flags().Changed("width") {
		cfg.Camera.Width, _ = cmd.Flags().GetInt("width")
	}
	if cmd.Flags().Changed("height") {
		cfg.Camera.Height, _ = cmd.Flags().GetInt("height")
	}
	if cmd.Flags().Changed("interval") {
		cfg.Camera.FrameInterval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("loop") {
		cfg.Camera.Loop, _ = cmd.Flags().GetBool("loop")
	}
	if cmd.Flags().Changed("flash") {
		cfg.Camera.Flash, _ = cmd.Flags().GetBool("flash")
	}
	return cfg.Validate()
}

// replayHit is one decoded barcode, as printed in JSON mode.
type replayHit struct {
	Text   string          `json:"text"`
	Format string          `json:"format"`
	Points []barcode.Point `json:"points,omitempty"`
}

func printHit(w io.Writer, format string, res *barcode.Result) error {
	if format == outputFormatJSON {
		return json.NewEncoder(w).Encode(replayHit{Text: res.Text, Format: res.Format.String(), Points: res.Points})
	}
	_, err := fmt.Fprintf(w, "[%s] %s\n", res.Format, res.Text)
	return err
}

func runReplayCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if err := applyCameraFlags(cfg, cmd); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != outputFormatText && format != outputFormatJSON {
		return fmt.Errorf("invalid output format: %s (must be text or json)", format)
	}
	once, _ := cmd.Flags().GetBool("once")

	logger := slog.Default()
	files, err := expandImages(args)
	if err != nil {
		return err
	}
	opts, err := cfg.ReplayOptions(logger)
	if err != nil {
		return err
	}
	driver, err := camera.NewReplayDriver(files, opts)
	if err != nil {
		return err
	}
	reader, err := newReader(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	// A success stops the loop until Resume, so one slot is enough.
	hits := make(hitListener, 1)
	sess, err := newSession(ctx, cfg, reader, hits, driver, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = sess.Close(context.Background()) }()

	if err := sess.Attach(ctx); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}
	if cfg.Camera.Flash {
		if err := sess.SetFlash(ctx, true); err != nil {
			logger.Warn("Failed to enable flash", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	found := 0
	for {
		select {
		case res := <-hits:
			found++
			if err := printHit(out, format, res); err != nil {
				return err
			}
			if once {
				return nil
			}
			sess.Resume()
		case <-driver.Exhausted():
			// The last outcome may still be queued.
			select {
			case res := <-hits:
				found++
				if err := printHit(out, format, res); err != nil {
					return err
				}
			default:
			}
			logger.Info("Replay finished", "images", len(files), "found", found)
			if found == 0 {
				return errNoBarcode
			}
			return nil
		case <-ctx.Done():
			logger.Info("Replay interrupted", "found", found)
			return nil
		}
	}
}

// hitListener forwards decoded barcodes; misses on the live loop are silent.
type hitListener chan *barcode.Result

func (h hitListener) ScanSuccess(string) {}

func (h hitListener) ScanResult(res *barcode.Result) { h <- res }

func (h hitListener) DecodeFailure() {}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Int("rotation", 90, "simulated sensor orientation in degrees (0, 90, 180, 270)")
	replayCmd.Flags().Int("display-rotation", 0, "display rotation in degrees (0, 90, 180, 270)")
	replayCmd.Flags().String("facing", "back", "camera facing (back, front)")
	replayCmd.Flags().Int("width", 0, "only preview width the camera offers (requires --height)")
	replayCmd.Flags().Int("height", 0, "only preview height the camera offers (requires --width)")
	replayCmd.Flags().Duration("interval", 0, "delay before each frame is delivered")
	replayCmd.Flags().Bool("loop", false, "restart from the first image after the last")
	replayCmd.Flags().Bool("flash", false, "turn the torch on")
	replayCmd.Flags().Bool("once", false, "stop after the first barcode")
	replayCmd.Flags().StringP("format", "f", "text", "output format (text, json)")
}
