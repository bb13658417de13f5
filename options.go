package gridline

import "log/slog"

// DefaultMaxUndo is the number of actions kept on the undo stack.
const DefaultMaxUndo = 100

// Options holds configuration for a Document.
type Options struct {
	evaluator     Evaluator
	logger        *slog.Logger
	maxUndo       int
	maxRangeCells int
	functions     map[string]any
}

func defaultOptions() *Options {
	return &Options{
		logger:        slog.New(slog.DiscardHandler),
		maxUndo:       DefaultMaxUndo,
		maxRangeCells: DefaultMaxRangeCells,
	}
}

// Option configures a Document.
type Option func(*Options)

// WithEvaluator replaces the expression runtime (default: an ExprEvaluator).
func WithEvaluator(ev Evaluator) Option {
	return func(o *Options) { o.evaluator = ev }
}

// WithLogger sets the logger for recalculation and history events (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxUndo limits how many actions can be undone (default: 100).
func WithMaxUndo(n int) Option {
	return func(o *Options) { o.maxUndo = n }
}

// WithMaxRangeCells caps the cells a single range may cover (default: 1,000,000).
// Only applied to the default evaluator.
func WithMaxRangeCells(n int) Option {
	return func(o *Options) { o.maxRangeCells = n }
}

// WithFunction registers a native function callable from formulas.
func WithFunction(name string, fn any) Option {
	return func(o *Options) {
		if o.functions == nil {
			o.functions = make(map[string]any)
		}
		o.functions[name] = fn
	}
}
