package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `# The API key identifies your horde account
horde_api_key: "0000000000"
dreamer_name: "An Awesome Dreamer"
max_threads: 2 # keep low on 8GB cards
nsfw: true
models_to_load:
  - "top 2"
  - "Deliberate"
allow_img2img: true
custom_models:
  - name: My Model
    baseline: stable_diffusion_xl
    filepath: /models/my.safetensors
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridgeData.yaml", sampleConfig)

	doc, err := Load(path)
	require.NoError(t, err)

	cfg := doc.Config
	assert.Equal(t, "0000000000", cfg.APIKey)
	assert.Equal(t, "An Awesome Dreamer", cfg.DreamerName)
	assert.True(t, cfg.NSFW)
	assert.Equal(t, 2, cfg.MaxThreads)
	assert.Equal(t, 32, cfg.MaxPower)
	assert.Equal(t, 1, cfg.QueueSize)
	assert.Equal(t, 4, cfg.MaxBatch)
	assert.Equal(t, []string{"top 2", "Deliberate"}, cfg.ModelsToLoad)
	require.Len(t, cfg.CustomModels, 1)
	assert.Equal(t, "stable_diffusion_xl", cfg.CustomModels[0].Baseline)
}

func TestSavePreservesUnknownKeysAndComments(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridgeData.yaml", sampleConfig)

	doc, err := Load(path)
	require.NoError(t, err)

	doc.Config.DreamerName = "Renamed"
	doc.Config.MaxThreads = 3
	doc.Config.ModelsToSkip = []string{"pix2pix"}
	require.NoError(t, doc.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "allow_img2img: true")
	assert.Contains(t, text, "# The API key identifies your horde account")
	assert.Contains(t, text, "# keep low on 8GB cards")
	assert.Contains(t, text, "max_power: 32")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Config.DreamerName)
	assert.Equal(t, 3, reloaded.Config.MaxThreads)
	assert.Equal(t, []string{"pix2pix"}, reloaded.Config.ModelsToSkip)
	assert.Len(t, reloaded.Config.CustomModels, 1)
	assert.Equal(t, 1, strings.Count(text, "dreamer_name:"))
}

func TestSaveAppendsMissingKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridgeData.yaml", "# account\nhorde_api_key: \"abc\"\n")

	doc, err := Load(path)
	require.NoError(t, err)
	doc.Config.MaxPower = 8
	require.NoError(t, doc.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "# account")
	// New keys follow the ones already in the file
	assert.Less(t, strings.Index(text, "horde_api_key:"), strings.Index(text, "dreamer_name:"))
	for _, key := range []string{"dreamer_name:", "max_power: 8", "queue_size:", "max_batch:", "allow_post_processing:"} {
		assert.Contains(t, text, key)
	}
	assert.NotContains(t, text, "custom_models")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", reloaded.Config.APIKey)
	assert.Equal(t, 8, reloaded.Config.MaxPower)
}

func TestSaveReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bridgeData.yaml", sampleConfig)
	require.NoError(t, os.Chmod(path, 0600))

	doc, err := Load(path)
	require.NoError(t, err)
	doc.Config.APIKey = "secret"
	require.NoError(t, doc.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bridgeData.yaml", entries[0].Name())

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridgeData.yaml", "")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxPower, doc.Config.MaxPower)

	doc.Config.APIKey = "abc"
	require.NoError(t, doc.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", reloaded.Config.APIKey)
}

func TestLoadRejectsNonMapping(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridgeData.yaml", "- a\n- b\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnsureFromTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgeData.yaml")

	_, err := EnsureFromTemplate(path)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))

	writeFile(t, dir, TemplateFileName, "dreamer_name: template\n")
	created, err := EnsureFromTemplate(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureFromTemplate(path)
	require.NoError(t, err)
	assert.False(t, created)

	doc, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "template", doc.Config.DreamerName)
}

func TestEnsureFromTemplateRemovesPartialCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgeData.yaml")
	// A directory opens fine but cannot be read as a file
	require.NoError(t, os.Mkdir(filepath.Join(dir, TemplateFileName), 0755))

	created, err := EnsureFromTemplate(path)
	assert.Error(t, err)
	assert.False(t, created)
	assert.NoFileExists(t, path)
}
