// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/core"
)

func findStringFlag(flags []cli.Flag, name string) *cli.StringFlag {
	for _, flag := range flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("log-level defaults to info", func(t *testing.T) {
		f := findStringFlag(app.Flags, "log-level")
		require.NotNil(t, f)
		assert.Equal(t, "info", f.Value)
	})

	t.Run("config reads DOCSYNC_CONFIG", func(t *testing.T) {
		f := findStringFlag(app.Flags, "config")
		require.NotNil(t, f)
		assert.Equal(t, []string{"DOCSYNC_CONFIG"}, f.EnvVars)
		assert.Empty(t, f.Value)
	})

	t.Run("commands", func(t *testing.T) {
		var names []string
		for _, cmd := range app.Commands {
			names = append(names, cmd.Name)
		}
		assert.Equal(t, []string{"sync", "watch", "status"}, names)
	})
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	err := app.Run([]string{"docsync", "--log-level", "loud", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "handbook")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "intro.md"), []byte("# Intro\n\nWelcome aboard."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "setup.md"), []byte("# Setup\n\nInstall the tools."), 0o644))

	path := filepath.Join(dir, "docsync.yaml")
	cfg := `
state:
  backend: sqlite
  path: ` + filepath.Join(dir, "state.db") + `
embedding:
  provider: mock
vectorstore:
  backend: chromem
  chromem:
    path: ` + filepath.Join(dir, "vectors") + `
sources:
  - name: handbook
    root: ` + root + `
    extensions: [md]
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, root
}

func TestSyncThenStatus(t *testing.T) {
	path, _ := writeTestConfig(t)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"docsync", "--config", path, "sync"}))

	assert.Contains(t, out.String(), "SOURCE")
	assert.Contains(t, out.String(), "localfile:handbook")
	assert.Contains(t, out.String(), string(core.IngestionSuccess))

	out.Reset()
	app = newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"docsync", "--config", path, "status"}))

	assert.Contains(t, out.String(), "localfile:handbook")
	assert.Contains(t, out.String(), string(core.IngestionSuccess))
	assert.NotContains(t, out.String(), "never")
}

func TestSync_UnknownSourceFilter(t *testing.T) {
	path, _ := writeTestConfig(t)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"docsync", "--config", path, "sync", "--source", "wiki"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}

func TestSync_BadConfig(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"docsync", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "sync"})
	require.Error(t, err)
}

type namedConnector string

func (n namedConnector) Source() core.SourceRef {
	return core.SourceRef{Type: "localfile", Name: string(n)}
}

func (namedConnector) GetDocuments(_ context.Context) ([]*core.Document, error) { return nil, nil }

func TestFilterSources(t *testing.T) {
	all := []connector.Connector{namedConnector("a"), namedConnector("b"), namedConnector("c")}

	assert.Equal(t, all, filterSources(all, nil))
	assert.Equal(t, []connector.Connector{namedConnector("a"), namedConnector("c")}, filterSources(all, []string{"c", "a"}))
	assert.Empty(t, filterSources(all, []string{"z"}))
}
