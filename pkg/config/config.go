// Package config loads typed settings from the environment, optionally
// exporting a dotenv file first.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvFileVar names a dotenv file when the -env flag is not given.
const EnvFileVar = "BILLING_ENV_FILE"

var (
	envFilePath string
	parseOnce   sync.Once

	exportMu sync.Mutex
	exported = map[string]bool{}
)

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(fmt.Errorf("config %s: %w", prefix, err))
	}
	return conf
}

// New exports the dotenv file (once per path) and fills T from variables
// named PREFIX_FIELD.
func New[T any](prefix string) (*T, error) {
	if path := resolveEnvPath(); path != "" {
		if err := exportOnce(path, false); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportOnce(".env", true); err != nil {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func resolveEnvPath() string {
	parseOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFilePath, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	if p := strings.TrimSpace(envFilePath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvFileVar))
}

func exportOnce(path string, optional bool) error {
	exportMu.Lock()
	defer exportMu.Unlock()
	if exported[path] {
		return nil
	}

	if optional {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
	}
	if err := exportEnvironment(path); err != nil {
		return err
	}
	exported[path] = true
	return nil
}

// exportEnvironment copies the file's keys into the process environment.
// Variables already set win over the file.
func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
