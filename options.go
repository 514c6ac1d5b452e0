package mainloop

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	poller Poller
	logger *Logger
	tuning Tuning
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements Option.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithPoller supplies the platform poller. When omitted, the loop uses
// the native poller for the platform (eventfd on Linux, self-pipe on
// Darwin, channel-based elsewhere).
func WithPoller(p Poller) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.poller = p
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(log *Logger) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = log
		return nil
	}}
}

// WithTuning applies a runtime tuning, typically loaded from a
// configuration file via TuningFromFile.
func WithTuning(t Tuning) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if err := t.validate(); err != nil {
			return err
		}
		if t.MaxWait == 0 {
			t.MaxWait = defaultMaxWait
		}
		opts.tuning = t
		return nil
	}}
}

// WithMetrics enables runtime metrics collection via the global
// OpenTelemetry meter provider.
func WithMetrics(enabled bool) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.tuning.Metrics = enabled
		return nil
	}}
}

// resolveLoopOptions applies Option instances to loopOptions.
func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		tuning: defaultTuning(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
