/*
 * Copyright 2022 Google LLC.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads the settings of the tabular tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig
	Datasets DatasetsConfig
	Trainer  TrainerConfig
	Store    StoreConfig
	Remote   RemoteConfig
	Serving  ServingConfig
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// DatasetsConfig holds the dataset catalog settings.
type DatasetsConfig struct {
	// Dir contains one sub-directory per named dataset. Datasets missing from Dir are generated.
	Dir        string
	SampleSize int `mapstructure:"sample_size"`
}

// TrainerConfig holds the default training settings.
type TrainerConfig struct {
	TimeLimit      time.Duration `mapstructure:"time_limit"`
	NumWorkers     int           `mapstructure:"num_workers"`
	ParallelModels int           `mapstructure:"parallel_models"`
	HoldoutFrac    float64       `mapstructure:"holdout_frac"`
	Seed           int64
}

// StoreConfig holds the run store settings. An empty path disables the store.
type StoreConfig struct {
	Path string
}

// RemoteConfig holds the settings of the external model backend.
type RemoteConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// ServingConfig holds the HTTP server settings.
type ServingConfig struct {
	Addr string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("datasets.dir", filepath.Join(os.Getenv("HOME"), ".cache", "tabular", "datasets"))
	v.SetDefault("datasets.sample_size", 1000)
	v.SetDefault("trainer.time_limit", 10*time.Minute)
	v.SetDefault("trainer.num_workers", 4)
	v.SetDefault("trainer.parallel_models", 1)
	v.SetDefault("trainer.holdout_frac", 0.2)
	v.SetDefault("trainer.seed", 0)
	v.SetDefault("store.path", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.timeout", 2*time.Minute)
	v.SetDefault("serving.addr", ":8080")
}

// Default returns the configuration built from the defaults only.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration from file and env. Env var overrides use prefix TABULAR_, e.g.
// TABULAR_REMOTE_ENDPOINT.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if cfgPath := os.Getenv("TABULAR_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "tabular"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TABULAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asNotFound(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func asNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

// Validate checks the consistency of the configuration.
func (c Config) Validate() error {
	if c.Trainer.HoldoutFrac <= 0 || c.Trainer.HoldoutFrac >= 1 {
		return fmt.Errorf("trainer.holdout_frac should be in (0, 1), got %v", c.Trainer.HoldoutFrac)
	}
	if c.Trainer.NumWorkers <= 0 {
		return fmt.Errorf("trainer.num_workers should be >= 1, got %d", c.Trainer.NumWorkers)
	}
	if c.Trainer.ParallelModels <= 0 {
		return fmt.Errorf("trainer.parallel_models should be >= 1, got %d", c.Trainer.ParallelModels)
	}
	if c.Datasets.SampleSize < 0 {
		return fmt.Errorf("datasets.sample_size should be >= 0, got %d", c.Datasets.SampleSize)
	}
	return nil
}
