package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	terminal io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithTerminal mirrors notifications to w as colored lines.
func WithTerminal(w io.Writer) Option {
	return func(a *application) {
		a.terminal = w
	}
}
