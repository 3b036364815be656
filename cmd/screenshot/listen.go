package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"go2tv.app/screenshot/config"
	"go2tv.app/screenshot/encode"
	"go2tv.app/screenshot/screenshot"
)

func newListenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Take a screenshot for every line read from stdin",
		Long: "listen keeps one owner context alive and starts a capture for each line\n" +
			"on stdin. A line reading q quits. The config file is reloaded when it\n" +
			"changes; format and quality apply to the next frame.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listen(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func listen(ctx context.Context, opts *rootOptions, in io.Reader, out, errOut io.Writer) error {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	printf := func(dst io.Writer, format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(dst, format, args...)
	}

	w, err := config.Watch(opts.configPath, func(c config.Config) {
		printf(errOut, "config reloaded: format=%s quality=%d\n", c.Format, *c.Quality)
	}, config.FromEnv(), opts.flagLayer)
	if err != nil {
		return err
	}
	defer w.Close()

	// Prompts cannot share stdin with the trigger lines.
	be, err := newBackend(w.Current(), nil, errOut, false)
	if err != nil {
		return err
	}

	looper := screenshot.NewLooper()
	defer looper.Close()
	sh := &shared{
		looper:   looper,
		registry: screenshot.NewRegistry(),
		encodeOptions: func() encode.Options {
			return w.Current().EncodeOptions()
		},
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "q" {
			// Abandon whatever is in flight; EOF lets it finish instead.
			cancel()
			break
		}
		cfg := w.Current()
		if _, busy := sh.registry.Active(); busy {
			printf(errOut, "%s\n", screenshot.ErrSessionActive)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := runSession(ctx, cfg, be, errOut, sh)
			switch {
			case errors.Is(err, screenshot.ErrSessionActive):
				printf(errOut, "%s\n", screenshot.ErrSessionActive)
			case err != nil:
				printf(errOut, "%s: %v\n", res.State, err)
			default:
				if s, ok := res.Outcome.(encode.Success); ok {
					printf(out, "%s\n", s.Path)
				}
			}
		}()
	}
	wg.Wait()
	return sc.Err()
}
