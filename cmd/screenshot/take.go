package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"go2tv.app/screenshot/config"
	"go2tv.app/screenshot/encode"
	"go2tv.app/screenshot/internal/processutil"
	"go2tv.app/screenshot/notify"
	"go2tv.app/screenshot/screenshot"
)

func newTakeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Capture one screenshot and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			in := cmd.InOrStdin()
			be, err := newBackend(opts.cfg, in, cmd.ErrOrStderr(), isInteractive(in))
			if err != nil {
				return err
			}
			res, err := runSession(ctx, opts.cfg, be, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			if s, ok := res.Outcome.(encode.Success); ok {
				fmt.Fprintln(cmd.OutOrStdout(), s.Path)
				if opts.cfg.OpenAfterSave() {
					openFile(ctx, s.Path, cmd.ErrOrStderr())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.open, "open", false, "open the saved file")
	return cmd
}

// shared carries the long-lived looper and registry of the listen command.
type shared struct {
	looper   *screenshot.Looper
	registry *screenshot.Registry
	// encodeOptions overrides cfg when set so hot reloads apply at frame time.
	encodeOptions func() encode.Options
	onComplete    func(screenshot.Result)
}

func sessionConfig(cfg config.Config, be *backend, notifyOut io.Writer, sh *shared) screenshot.Config {
	enc := encode.New(cfg.OutputDir)
	sc := screenshot.Config{
		Broker:            be.broker,
		Opener:            be.opener,
		Encoder:           enc,
		Notifier:          notifierFor(cfg, notifyOut),
		Geometry:          be.geometry,
		NamePrefix:        cfg.NamePrefix,
		EncodeOptions:     cfg.EncodeOptions,
		FrameTimeout:      cfg.FrameTimeout(),
		PermissionTimeout: cfg.PermissionTimeout(),
	}
	if sh != nil {
		sc.Looper = sh.looper
		sc.Registry = sh.registry
		sc.OnComplete = sh.onComplete
		if sh.encodeOptions != nil {
			sc.EncodeOptions = sh.encodeOptions
		}
	}
	return sc
}

func runSession(ctx context.Context, cfg config.Config, be *backend, notifyOut io.Writer, sh *shared) (screenshot.Result, error) {
	return screenshot.Take(ctx, cfg.OutputDir, sessionConfig(cfg, be, notifyOut, sh))
}

// openFile starts the default viewer and leaves it running after we exit.
func openFile(ctx context.Context, path string, stderr io.Writer) {
	c := processutil.OpenCommand(context.WithoutCancel(ctx), path)
	if err := c.Start(); err != nil {
		fmt.Fprintf(stderr, "open %s: %v\n", path, err)
		return
	}
	_ = c.Process.Release()
}

// Swapped in tests.
var (
	isInteractive = func(in io.Reader) bool {
		return in == os.Stdin && stdinIsTerminal()
	}
	notifierFor = func(cfg config.Config, out io.Writer) notify.Notifier {
		return newNotifier(cfg, out)
	}
)
