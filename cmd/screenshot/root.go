package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/screenshot/config"
)

type rootOptions struct {
	configPath string

	format       string
	quality      int
	dir          string
	prefix       string
	backend      string
	notifyMode   string
	display      int
	density      int
	frameTimeout time.Duration
	open         bool

	// cfg is the merged configuration, set in PersistentPreRunE.
	cfg       config.Config
	flagLayer *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "screenshot",
		Short:        "Capture the screen to an image file",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("locating config: %w", err)
				}
				opts.configPath = p
			}
			file, err := config.LoadFile(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			opts.flagLayer = opts.changedFlags(cmd)
			opts.cfg = config.Merge(file, config.FromEnv(), opts.flagLayer)
			return opts.cfg.Validate()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/go2tv-screenshot/config.json)")
	f.StringVar(&opts.format, "format", "", "image format: jpeg, png or webp")
	f.IntVar(&opts.quality, "quality", 0, "compression quality 0-100")
	f.StringVar(&opts.dir, "dir", "", "output directory")
	f.StringVar(&opts.prefix, "prefix", "", "file name prefix")
	f.StringVar(&opts.backend, "backend", "", "capture backend: auto, portal or display")
	f.StringVar(&opts.notifyMode, "notify", "", "notifications: auto, desktop, terminal or none")
	f.IntVar(&opts.display, "display", 0, "display index for the display backend")
	f.IntVar(&opts.density, "density", 0, "display density in dpi")
	f.DurationVar(&opts.frameTimeout, "frame-timeout", 0, "give up when no frame arrives in time (0 waits)")

	root.AddCommand(
		newTakeCmd(opts),
		newListenCmd(opts),
		newConfigCmd(opts),
		newForgetCmd(opts),
	)
	return root
}

// changedFlags turns the flags the user actually set into a config layer.
func (o *rootOptions) changedFlags(cmd *cobra.Command) *config.Config {
	var c config.Config
	changed := cmd.Flags().Changed
	if changed("format") {
		c.Format = o.format
	}
	if changed("quality") {
		c.Quality = config.Int(o.quality)
	}
	if changed("dir") {
		c.OutputDir = o.dir
	}
	if changed("prefix") {
		c.NamePrefix = o.prefix
	}
	if changed("backend") {
		c.Backend = o.backend
	}
	if changed("notify") {
		c.Notify = o.notifyMode
	}
	if changed("display") {
		c.Display = config.Int(o.display)
	}
	if changed("density") {
		c.DensityDPI = o.density
	}
	if changed("frame-timeout") {
		c.FrameTimeoutMS = config.Int(int(o.frameTimeout / time.Millisecond))
	}
	if changed("open") {
		c.Open = config.Bool(o.open)
	}
	return &c
}
