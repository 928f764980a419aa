package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/internal/config"
)

func write(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Returns_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	want := config.Default()
	want.EffectiveCwd = dir
	want.SchemaAbs = filepath.Join(dir, "idxdb.schema.json")
	want.DBAbs = filepath.Join(dir, "idxdb.sqlite")

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	require.Contains(t, config.Format(cfg), "(defaults only)")
}

func Test_Load_Layers_Sources_When_All_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	write(t, filepath.Join(xdg, "idxdb", "config.json"), `{
		// global
		"log_level": "debug",
		"db": "global.sqlite",
		"schema": "global.json",
	}`)
	write(t, filepath.Join(dir, config.FileName), `{"schema": "project.json"}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
		Overrides:       config.Config{DB: "/abs/flag.sqlite"},
	})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "project.json"), cfg.SchemaAbs)
	require.Equal(t, "/abs/flag.sqlite", cfg.DBAbs)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, filepath.Join(xdg, "idxdb", "config.json"), cfg.Sources.Global)
	require.Equal(t, filepath.Join(dir, config.FileName), cfg.Sources.Project)

	out := config.Format(cfg)
	require.Contains(t, out, "global_config=")
	require.Contains(t, out, "project_config=")
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	write(t, filepath.Join(dir, config.FileName), `{"schema": "project.json"}`)
	write(t, filepath.Join(dir, "alt.json"), `{"backend": "memory"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "alt.json"})
	require.NoError(t, err)

	require.Equal(t, config.BackendMemory, cfg.Backend)
	require.Empty(t, cfg.DBAbs)
	require.Equal(t, filepath.Join(dir, "idxdb.schema.json"), cfg.SchemaAbs)
}

func Test_Load_Fails_When_Config_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		input   config.LoadInput
		wantErr error
	}{
		{name: "bad JSONC", file: `{"schema": `, wantErr: config.ErrConfigInvalid},
		{name: "empty schema", file: `{"schema": ""}`, wantErr: config.ErrSchemaEmpty},
		{name: "unknown backend", file: `{"backend": "redis"}`, wantErr: config.ErrUnknownBackend},
		{name: "unknown level", file: `{"log_level": "loud"}`, wantErr: config.ErrUnknownLogLevel},
		{name: "missing explicit", input: config.LoadInput{ConfigPath: "nope.json"}, wantErr: config.ErrConfigFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.file != "" {
				write(t, filepath.Join(dir, config.FileName), tt.file)
			}

			tt.input.WorkDirOverride = dir

			_, err := config.Load(tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func Test_Level_Parses_Slog_Names(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.LogLevel = "DEBUG"

	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, "DEBUG", level.String())
}
