package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/x/term"

	"go2tv.app/screenshot/capture"
	"go2tv.app/screenshot/config"
	"go2tv.app/screenshot/notify"
	"go2tv.app/screenshot/screencast"
)

// fallbackGeometry sizes portal sessions when no display can be queried;
// the granted stream size replaces it once the portal answers.
var fallbackGeometry = capture.Geometry{Width: 1920, Height: 1080}

type backend struct {
	broker   screencast.Broker
	opener   capture.Opener
	geometry capture.Geometry
}

// newBackend is swapped in tests.
var newBackend = defaultBackend

func defaultBackend(cfg config.Config, in io.Reader, out io.Writer, interactive bool) (*backend, error) {
	mode := capture.Backend(cfg.Backend)
	if mode == capture.BackendPortal || (mode == capture.BackendAuto && preferPortal()) {
		store, err := screencast.DefaultTokenStore()
		if err != nil {
			return nil, err
		}
		g, err := capture.DetectGeometry(cfg.DisplayIndex(), cfg.DensityDPI)
		if err != nil {
			g = fallbackGeometry
			g.DensityDPI = cfg.DensityDPI
		}
		return &backend{
			broker:   &screencast.PortalBroker{Store: store},
			opener:   capture.NewOpener(&capture.Options{Backend: capture.BackendPortal}),
			geometry: g,
		}, nil
	}

	g, err := capture.DetectGeometry(cfg.DisplayIndex(), cfg.DensityDPI)
	if err != nil {
		return nil, err
	}
	broker := &screencast.LocalBroker{}
	if interactive {
		broker.Prompt = promptFunc(in, out)
	}
	return &backend{
		broker:   broker,
		opener:   capture.NewOpener(&capture.Options{Backend: capture.BackendDisplay, DisplayIndex: cfg.DisplayIndex()}),
		geometry: g,
	}, nil
}

func preferPortal() bool {
	if runtime.GOOS != "linux" || os.Getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	return screencast.PortalAvailable()
}

func promptFunc(in io.Reader, out io.Writer) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		fmt.Fprint(out, "Allow screen capture? [y/N] ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

func stdinIsTerminal() bool {
	return term.IsTerminal(os.Stdin.Fd())
}

func newNotifier(cfg config.Config, out io.Writer) notify.Notifier {
	switch cfg.Notify {
	case config.NotifyNone:
		return notify.Discard{}
	case config.NotifyTerminal:
		return notify.NewTerminal(out)
	case config.NotifyDesktop:
		return notify.NewDesktop("screenshot")
	default:
		if runtime.GOOS == "linux" && notify.DesktopAvailable() {
			return notify.Multi{notify.NewTerminal(out), notify.NewDesktop("screenshot")}
		}
		return notify.NewTerminal(out)
	}
}
