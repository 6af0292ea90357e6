// WMBUS - A wireless M-Bus telegram decoder for metering gateways.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/bemasher/wmbus/decoder"
	"github.com/bemasher/wmbus/keystore"
	"github.com/bemasher/wmbus/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile = "wmbus.yaml"
	envPrefix         = "WMBUS_"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type FeedConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	DisableChecksums bool              `yaml:"disable_checksums"`
	ChecksumRemoved  bool              `yaml:"checksum_removed"`
	Decrypted        bool              `yaml:"decrypted"`
	Format           string            `yaml:"format"`
	Keys             map[string]string `yaml:"keys"`
	KeysFile         string            `yaml:"keys_file"`

	Serial source.SerialConfig `yaml:"serial"`
	Feed   FeedConfig          `yaml:"feed"`
	Log    LogConfig           `yaml:"log"`
}

func DefaultConfig() Config {
	return Config{
		Format: "plain",
		Serial: source.SerialConfig{BaudRate: source.DefaultBaudRate},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// only an error when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()

	buf, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	// Relative key files are relative to the config file.
	if cfg.KeysFile != "" && !filepath.IsAbs(cfg.KeysFile) {
		cfg.KeysFile = filepath.Join(filepath.Dir(path), cfg.KeysFile)
	}

	return cfg, nil
}

// EnvOverride sets every flag not given on the command line from its
// environment variable, WMBUS_ followed by the flag name in upper case with
// dashes replaced by underscores.
func EnvOverride(flags *pflag.FlagSet, log logrus.FieldLogger) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}

		envName := envPrefix + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
		flagValue := os.Getenv(envName)
		if flagValue == "" {
			return
		}

		if err := flags.Set(f.Name, flagValue); err != nil {
			log.Warnf("Environment variable %q failed to override flag %q with value %q: %s", envName, f.Name, flagValue, err)
			return
		}
		log.Debugf("Environment variable %q overrides flag %q with %q", envName, f.Name, flagValue)
	})
}

// ApplyFlags copies flags that were set into the config.
func (cfg *Config) ApplyFlags(flags *pflag.FlagSet) (err error) {
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "disable-checksums":
			cfg.DisableChecksums, err = flags.GetBool(f.Name)
		case "checksum-removed":
			cfg.ChecksumRemoved, err = flags.GetBool(f.Name)
		case "decrypted":
			cfg.Decrypted, err = flags.GetBool(f.Name)
		case "format":
			cfg.Format, err = flags.GetString(f.Name)
		case "keys-file":
			cfg.KeysFile, err = flags.GetString(f.Name)
		case "key":
			var keys map[string]string
			keys, err = flags.GetStringToString(f.Name)
			if cfg.Keys == nil {
				cfg.Keys = make(map[string]string)
			}
			for addr, key := range keys {
				cfg.Keys[addr] = key
			}
		case "port":
			cfg.Serial.Port, err = flags.GetString(f.Name)
		case "baud":
			cfg.Serial.BaudRate, err = flags.GetInt(f.Name)
		case "listen":
			cfg.Feed.Listen, err = flags.GetString(f.Name)
		case "loglevel":
			cfg.Log.Level, err = flags.GetString(f.Name)
		case "logfile":
			cfg.Log.File, err = flags.GetString(f.Name)
		}

		err = errors.Wrapf(err, "flag %s", f.Name)
	})

	return err
}

// KeyStore provisions a key store from the inline keys and the key file.
func (cfg Config) KeyStore() (*keystore.Store, error) {
	keys := keystore.New()

	if cfg.KeysFile != "" {
		if err := keys.LoadFile(cfg.KeysFile); err != nil {
			return nil, err
		}
	}

	if err := keys.AddAll(cfg.Keys); err != nil {
		return nil, errors.Wrap(err, "config keys")
	}

	return keys, nil
}

// Decoder builds a telegram decoder from the config.
func (cfg Config) Decoder(log decoder.Logger) (*decoder.Decoder, error) {
	keys, err := cfg.KeyStore()
	if err != nil {
		return nil, err
	}

	return decoder.New(decoder.Options{
		Logger:           log,
		DisableChecksums: cfg.DisableChecksums,
		Keys:             keys,
	})
}

// Logger configures a logrus logger writing to w and, when a log file is
// configured, to a rotating log file.
func (cfg LogConfig) Logger(w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	log.SetLevel(level)

	if cfg.File == "" {
		log.SetOutput(w)
		return log, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(w, rotator))

	return log, nil
}

// loadRunConfig resolves the config for a command. Command line flags win
// over the environment, which wins over the config file.
func loadRunConfig(cmd *cobra.Command) (Config, error) {
	EnvOverride(cmd.Flags(), logrus.StandardLogger())

	path, _ := cmd.Flags().GetString("config")
	required := cmd.Flags().Changed("config")

	cfg, err := LoadConfig(path, required)
	if err != nil {
		return cfg, err
	}

	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return cfg, err
	}

	return cfg, nil
}
