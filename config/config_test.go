package config

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := New().
		AddOption("core", NoSubsection, "bare", "false").
		AddOption("remote", "origin", "url", "https://example.com/repo.git").
		AddOption("remote", "origin", "fetch", "+refs/heads/*:refs/remotes/origin/*")

	buf := &bytes.Buffer{}
	require.NoError(t, NewEncoder(buf).Encode(cfg))

	decoded := New()
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(decoded))

	require.Equal(t, "false", decoded.GetOption("core", NoSubsection, "bare"))
	require.Equal(t, "https://example.com/repo.git", decoded.GetOption("remote", "origin", "url"))
	require.Equal(t,
		[]string{"+refs/heads/*:refs/remotes/origin/*"},
		decoded.GetAllOptions("remote", "origin", "fetch"))
}

func TestEncodeQuotesSpecialValues(t *testing.T) {
	cfg := New().AddOption("section", NoSubsection, "opt", `has " quote`)
	buf := &bytes.Buffer{}
	require.NoError(t, NewEncoder(buf).Encode(cfg))
	require.Equal(t, "[section]\n\topt = \"has \\\" quote\"\n", buf.String())
}

func TestCoreDefaultsAndOverrides(t *testing.T) {
	cfg := New()
	core := CoreOf(cfg)
	require.False(t, core.Bare())
	require.False(t, core.FSync())
	require.True(t, core.Symlinks())

	core.SetBare(true)
	core.SetSymlinks(false)
	require.True(t, core.Bare())
	require.False(t, core.Symlinks())
}

func TestLoadMissingFileYieldsEmptyConfig(t *testing.T) {
	fs := memfs.New()
	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Empty(t, cfg.Sections)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := memfs.New()
	cfg := New().AddOption("core", NoSubsection, "bare", "true")
	require.NoError(t, Save(fs, cfg))

	loaded, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, "true", loaded.GetOption("core", NoSubsection, "bare"))
}

func TestSectionSetOptionReordersToEnd(t *testing.T) {
	sect := &Section{
		Options: Options{
			{Key: "key1", Value: "value1"},
			{Key: "key2", Value: "value2"},
		},
	}
	sect.SetOption("key1", "value4")
	require.Equal(t, Options{
		{Key: "key2", Value: "value2"},
		{Key: "key1", Value: "value4"},
	}, sect.Options)
}

func TestSubsectionSetOptionIsPositional(t *testing.T) {
	sub := &Subsection{
		Options: Options{
			{Key: "key1", Value: "value1"},
			{Key: "key2", Value: "value2"},
			{Key: "key1", Value: "value3"},
		},
	}
	sub.SetOption("key1", "value1", "value4")
	require.Equal(t, Options{
		{Key: "key1", Value: "value1"},
		{Key: "key2", Value: "value2"},
		{Key: "key1", Value: "value4"},
	}, sub.Options)
}
