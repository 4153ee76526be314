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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, "info", c.Log.Level)
	require.Equal(t, 1000, c.Datasets.SampleSize)
	require.Equal(t, 10*time.Minute, c.Trainer.TimeLimit)
	require.NoError(t, c.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "trainer:\n  time_limit: 30s\n  num_workers: 2\nremote:\n  endpoint: http://file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("TABULAR_CONFIG", path)
	t.Setenv("TABULAR_REMOTE_ENDPOINT", "http://env")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, c.Trainer.TimeLimit)
	require.Equal(t, 2, c.Trainer.NumWorkers)
	require.Equal(t, "http://env", c.Remote.Endpoint)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Trainer.HoldoutFrac = 1.5
	require.Error(t, c.Validate())
}
