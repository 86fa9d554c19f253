package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns the option groups, one named flag set per group.
	Flags() cliflag.NamedFlagSets

	// Validate reports every invalid setting as one aggregated error.
	Validate() error
}

// CompleteableOptions fills derived fields after flags and config are read.
type CompleteableOptions interface {
	Complete() error
}

// NamedFlagSetOptions is what an application hands to WithOptions.
type NamedFlagSetOptions interface {
	CliOptions
	CompleteableOptions
}

// Option configures an App.
type Option func(*App)

// RunFunc is the application's main body, invoked after options are valid.
type RunFunc func() error

// WithOptions binds opts to the command line and the config file.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function run after options are complete and valid.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithDescription sets the long description shown in help output.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = noArgs
	}
}

// WithNoConfig disables the config file, environment and hot reload.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithConfigChangeHook registers fn to run whenever the watched config file changes.
func WithConfigChangeHook(fn ConfigChangeFunc) Option {
	return func(a *App) {
		a.onChange = append(a.onChange, fn)
	}
}
