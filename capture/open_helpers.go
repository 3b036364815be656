package capture

import "fmt"

func validateOpenOptions(options *Options) (*Options, error) {
	opts := Options{Backend: BackendAuto}
	if options != nil {
		opts = *options
	}
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.DisplayIndex < 0 {
		return nil, fmt.Errorf("%w: DisplayIndex must be >= 0", ErrInvalidOptions)
	}
	switch opts.Backend {
	case BackendAuto, BackendPortal, BackendDisplay:
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidOptions, opts.Backend)
	}
	return &opts, nil
}

func pickBackend(token Token, requested Backend) (Backend, error) {
	_, isGrant := token.(PipeWireGrant)
	switch requested {
	case BackendPortal:
		if !isGrant {
			return "", fmt.Errorf("%w: portal backend needs a portal grant", ErrTokenRejected)
		}
		return BackendPortal, nil
	case BackendDisplay:
		return BackendDisplay, nil
	default:
		if isGrant {
			return BackendPortal, nil
		}
		return BackendDisplay, nil
	}
}
