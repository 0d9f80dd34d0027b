package transport

import "fmt"

// Sink names accepted by NewDefaultFactory.
const (
	SinkSMTP   = "smtp"
	SinkStdout = "stdout"
	SinkFile   = "file"
)

// Factory builds a Transport from a Config.
type Factory interface {
	New(cfg Config) (Transport, error)
}

// DefaultFactory builds wire transports, or a development sink for every
// config when one is selected.
type DefaultFactory struct {
	sink string
	dir  string
}

// NewDefaultFactory returns a factory for the given sink. dir is only used by
// the file sink.
func NewDefaultFactory(sink, dir string) *DefaultFactory {
	if sink == "" {
		sink = SinkSMTP
	}
	return &DefaultFactory{sink: sink, dir: dir}
}

// New validates cfg and returns the transport for its SSL mode.
func (f *DefaultFactory) New(cfg Config) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch f.sink {
	case SinkStdout:
		return NewStdout(cfg), nil
	case SinkFile:
		return NewFile(cfg, f.dir), nil
	case SinkSMTP:
	default:
		return nil, fmt.Errorf("unsupported sink: %s", f.sink)
	}

	switch cfg.Mode {
	case SSLModeNone, SSLModeTLS:
		return NewSMTP(cfg), nil
	case SSLModeSSL:
		return NewImplicitTLS(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported ssl mode: %s", cfg.Mode)
	}
}
