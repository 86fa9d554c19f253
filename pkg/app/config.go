package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/otahub/pkg/log"
)

const (
	flagConfig      = "config"
	flagPrintConfig = "print-config"
)

// ConfigChangeFunc is called with the reloaded settings after the config file changes.
type ConfigChangeFunc func(v *viper.Viper, e fsnotify.Event)

func addConfigFlags(name string, fs *pflag.FlagSet) {
	fs.StringP(flagConfig, "c", "", fmt.Sprintf("Read %s configuration from the specified file (yaml, json or toml).", name))
	fs.Bool(flagPrintConfig, false, "Print the effective configuration and exit.")
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// loadConfig binds fs, the environment and an optional config file to v.
func loadConfig(v *viper.Viper, name string, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix(name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfgFile, _ := fs.GetString(flagConfig)
	if cfgFile == "" {
		return nil
	}

	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", cfgFile, err)
	}
	return nil
}

// watchConfig re-applies the log level and runs hooks on every config file change.
func watchConfig(v *viper.Viper, hooks []ConfigChangeFunc) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed", "file", e.Name, "op", e.Op.String())

		if lvl := v.GetString("log.level"); lvl != "" && lvl != log.Level() {
			if err := log.SetLevel(lvl); err != nil {
				log.Error(err, "Ignoring log level from reloaded configuration")
			} else {
				log.Info("Log level updated", "level", lvl)
			}
		}

		for _, hook := range hooks {
			hook(v, e)
		}
	})
	v.WatchConfig()
}

// printConfig writes every effective setting as a two-column table.
func printConfig(w io.Writer, v *viper.Viper) {
	keys := v.AllKeys()
	sort.Strings(keys)

	table := uitable.New()
	table.Separator = " "
	table.MaxColWidth = 80
	table.AddRow("KEY", "VALUE")
	for _, k := range keys {
		if k == flagConfig || k == flagPrintConfig {
			continue
		}
		val := fmt.Sprint(v.Get(k))
		if isSecret(k) && val != "" {
			val = "******"
		}
		table.AddRow(k, val)
	}
	fmt.Fprintln(w, table)
}

func isSecret(key string) bool {
	return strings.Contains(key, "password") || strings.Contains(key, "secret")
}
