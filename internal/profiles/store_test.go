package profiles_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

const testCatalogYAML = `
settings:
  - name: Map
    kind: string
    location: map
    default: TheIsland_WP
  - name: MaxPlayers
    kind: int
    location: mapurl
    default: 70
  - name: mods
    kind: vector<int>
    location: commandline
  - name: NoBattlEye
    kind: bool
    location: commandline
  - name: AdditionalOptions
    kind: vector<string>
    location: commandline
  - name: SessionName
    kind: string
    section: SessionSettings
    default: Unnamed
  - name: RCONPort
    kind: int
    section: ServerSettings
    default: 27020
  - name: Rates
    kind: vector<float>
    convention: indexed
    section: Mode
`

func testStore(t *testing.T, mode settings.Mode) *profiles.Store {
	t.Helper()
	c, err := settings.LoadCatalog(strings.NewReader(testCatalogYAML))
	require.NoError(t, err)
	return profiles.NewStore(c, mode, "", zap.NewNop())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := testStore(t, settings.Strict)
	dir := filepath.Join(t.TempDir(), "island")

	p := store.New(dir, "Island", "/srv/ark")
	p.Runtime = profiles.Runtime{PluginHost: true, MemoryLimitMB: 12000}
	require.NoError(t, p.SetOverride("SessionName", settings.Str("My \"Island\""), true))
	require.NoError(t, p.SetOverride("Rates", settings.Vector(settings.Float(1), settings.Float(2.5)), false))
	require.NoError(t, p.SetOverride("mods", settings.Vector(settings.Int(100), settings.Int(200)), false))
	require.NoError(t, p.SetOverride("MaxPlayers", settings.Int(20), true))

	warns, err := store.Save(p)
	require.NoError(t, err)
	assert.Empty(t, warns)

	iniText := readFile(t, filepath.Join(dir, profiles.DefaultConfigFile))
	assert.Contains(t, iniText, `SessionName="My \"Island\""`)
	assert.NotContains(t, iniText, "mods")
	manifest := readFile(t, filepath.Join(dir, profiles.ManifestFile))
	assert.Contains(t, manifest, "plugin_host: true")
	assert.Contains(t, manifest, "name: mods")

	loaded, warns, err := store.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, p.ID, loaded.ID)
	assert.Equal(t, "Island", loaded.Name)
	assert.Equal(t, "/srv/ark", loaded.InstallDir)
	assert.Equal(t, p.Runtime, loaded.Runtime)

	want, got := p.Effective(), loaded.Effective()
	require.Len(t, got, len(want))
	for name, v := range want {
		assert.True(t, v.Equal(got[name]), "%s: %s != %s", name, v, got[name])
	}

	favs := loaded.Overrides()
	require.Len(t, favs, 4)
	assert.Equal(t, "MaxPlayers", favs[0].Name)
	assert.True(t, favs[0].Favorite)
	assert.Equal(t, "SessionName", favs[1].Name)
	assert.True(t, favs[1].Favorite)
	assert.False(t, favs[2].Favorite)
}

func TestSave_Idempotent(t *testing.T) {
	store := testStore(t, settings.Lenient)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, profiles.DefaultConfigFile), `[ServerSettings]
RCONPort=27020
Custom=1
[Mode]
Rates[1]=2
Rates[0]=1
`)
	p, _, err := store.ImportExisting(dir, true)
	require.NoError(t, err)
	_, err = store.Save(p)
	require.NoError(t, err)
	iniFirst := readFile(t, filepath.Join(dir, profiles.DefaultConfigFile))
	manifestFirst := readFile(t, filepath.Join(dir, profiles.ManifestFile))

	again, warns, err := store.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, warns)
	_, err = store.Save(again)
	require.NoError(t, err)

	assert.Equal(t, iniFirst, readFile(t, filepath.Join(dir, profiles.DefaultConfigFile)))
	assert.Equal(t, manifestFirst, readFile(t, filepath.Join(dir, profiles.ManifestFile)))
}

func TestRemoveOverride(t *testing.T) {
	store := testStore(t, settings.Strict)
	dir := t.TempDir()
	p := store.New(dir, "x", dir)
	require.NoError(t, p.SetOverride("RCONPort", settings.Int(30000), false))
	_, err := store.Save(p)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, filepath.Join(dir, profiles.DefaultConfigFile)), "RCONPort=30000")

	assert.True(t, p.RemoveOverride("rconport"))
	assert.False(t, p.RemoveOverride("RCONPort"))
	assert.Equal(t, []string{"RCONPort"}, p.PendingRemovals())

	_, err = store.Save(p)
	require.NoError(t, err)
	assert.NotContains(t, readFile(t, filepath.Join(dir, profiles.DefaultConfigFile)), "RCONPort")
	assert.Empty(t, p.PendingRemovals())

	loaded, _, err := store.Load(dir)
	require.NoError(t, err)
	v, _ := loaded.Value("RCONPort")
	assert.True(t, settings.Int(27020).Equal(v))
}

func TestRemoveOverride_UnknownKey(t *testing.T) {
	store := testStore(t, settings.Lenient)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, profiles.DefaultConfigFile), "Legacy[0]=a\nLegacy[1]=b\nKeep=1\n")
	p, _, err := store.ImportExisting(dir, true)
	require.NoError(t, err)
	require.Len(t, p.Unknown(), 3)

	assert.True(t, p.RemoveOverride("Legacy"))
	_, err = store.Save(p)
	require.NoError(t, err)
	assert.Equal(t, "Keep=1\n", readFile(t, filepath.Join(dir, profiles.DefaultConfigFile)))
}

func TestSetOverride(t *testing.T) {
	store := testStore(t, settings.Lenient)
	p := store.New(t.TempDir(), "x", "")

	err := p.SetOverride("Nope", settings.Int(1), false)
	assert.True(t, errors.Is(err, profiles.ErrUnknownSetting))

	err = p.SetOverride("RCONPort", settings.Str("x"), false)
	var sm *settings.ShapeMismatchError
	assert.True(t, errors.As(err, &sm))

	require.NoError(t, p.SetOverride("mods", settings.Int(5), false))
	v, _ := p.Value("mods")
	assert.True(t, settings.Vector(settings.Int(5)).Equal(v))

	assert.Error(t, p.SetFavorite("SessionName", true))
	require.NoError(t, p.SetFavorite("mods", true))
	o, ok := p.Override("MODS")
	require.True(t, ok)
	assert.True(t, o.Favorite)
}

func TestLoad_Errors(t *testing.T) {
	store := testStore(t, settings.Lenient)
	root := t.TempDir()

	noManifest := filepath.Join(root, "no-manifest")
	writeFile(t, filepath.Join(noManifest, profiles.DefaultConfigFile), "")

	noIni := filepath.Join(root, "no-ini")
	writeFile(t, filepath.Join(noIni, profiles.ManifestFile), "id: 0b7b4a52-5f0e-4b8e-9a39-6f1f4c2b8f7e\nname: x\n")

	badID := filepath.Join(root, "bad-id")
	writeFile(t, filepath.Join(badID, profiles.ManifestFile), "id: nope\n")
	writeFile(t, filepath.Join(badID, profiles.DefaultConfigFile), "")

	for _, dir := range []string{filepath.Join(root, "missing"), noManifest, noIni, badID} {
		t.Run(filepath.Base(dir), func(t *testing.T) {
			_, _, err := store.Load(dir)
			var pe *profiles.ProfileIOError
			assert.True(t, errors.As(err, &pe), "err = %v", err)
		})
	}
}

func TestLoad_CoercesManifestValues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, profiles.DefaultConfigFile), "")
	writeFile(t, filepath.Join(dir, profiles.ManifestFile), `id: 0b7b4a52-5f0e-4b8e-9a39-6f1f4c2b8f7e
name: old
overrides:
  - name: mods
    value: {int: 42}
  - name: MaxPlayers
    value: {string: lots}
  - name: Removed
    value: {bool: true}
`)

	p, warns, err := testStore(t, settings.Lenient).Load(dir)
	require.NoError(t, err)
	assert.Len(t, warns, 2)
	v, _ := p.Value("mods")
	assert.True(t, settings.Vector(settings.Int(42)).Equal(v))
	v, _ = p.Value("MaxPlayers")
	assert.True(t, settings.Int(70).Equal(v))

	_, _, err = testStore(t, settings.Strict).Load(dir)
	var sm *settings.ShapeMismatchError
	assert.True(t, errors.As(err, &sm), "err = %v", err)
}

func TestImportExisting(t *testing.T) {
	store := testStore(t, settings.Lenient)
	dir := filepath.Join(t.TempDir(), "MyServer")
	writeFile(t, filepath.Join(dir, profiles.DefaultConfigFile), `[SessionSettings]
SessionName=Unnamed
[ServerSettings]
RCONPort=27099
NewerKey=1
`)
	writeFile(t, filepath.Join(dir, "Game.ini"), "[/script/shootergame.shootergamemode]\nX=1\n")
	writeFile(t, filepath.Join(dir, "SavedArks", "TheIsland.ark"), "\x00\x01binary")

	p, warns, err := store.ImportExisting(dir, true)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, "MyServer", p.Name)
	assert.NotEqual(t, uuid.Nil, p.ID)

	overrides := p.Overrides()
	require.Len(t, overrides, 1)
	assert.Equal(t, "RCONPort", overrides[0].Name)
	assert.Equal(t, "NewerKey", p.Unknown()[0].Key)
}

func TestImportExisting_MissingIni(t *testing.T) {
	store := testStore(t, settings.Lenient)
	dir := t.TempDir()

	p, warns, err := store.ImportExisting(dir, true)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, warns, 1)

	_, warns, err = store.ImportExisting(dir, false)
	require.NoError(t, err)
	assert.Empty(t, warns)

	_, _, err = store.ImportExisting(filepath.Join(dir, "nope"), true)
	var pe *profiles.ProfileIOError
	assert.True(t, errors.As(err, &pe))
}

func TestImportExisting_ExternalIni(t *testing.T) {
	store := testStore(t, settings.Lenient)
	dir := filepath.Join(t.TempDir(), "Hand")
	original := "; tuned by hand\n[ServerSettings]\nRCONPort=27050\nSomethingCustom=1\n"
	iniPath := filepath.Join(dir, profiles.DefaultConfigFile)
	writeFile(t, iniPath, original)

	p, warns, err := store.ImportExisting(dir, false)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.True(t, p.Runtime.ExternalIni)
	v, _ := p.Value("RCONPort")
	assert.True(t, settings.Int(27050).Equal(v))

	require.NoError(t, p.SetOverride("SessionName", settings.Str("Changed"), false))
	_, err = store.Save(p)
	require.NoError(t, err)
	assert.Equal(t, original, readFile(t, iniPath))
	assert.Contains(t, readFile(t, filepath.Join(dir, profiles.ManifestFile)), "external_ini: true")

	loaded, _, err := store.Load(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Runtime.ExternalIni)
	v, _ = loaded.Value("RCONPort")
	assert.True(t, settings.Int(27050).Equal(v))

	// an external profile may exist before the user writes the file
	require.NoError(t, os.Remove(iniPath))
	_, _, err = store.Load(dir)
	require.NoError(t, err)
}

func TestSave_Concurrent(t *testing.T) {
	store := testStore(t, settings.Strict)
	dir := t.TempDir()
	p := store.New(dir, "busy", dir)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, p.SetOverride("SessionName", settings.Str(fmt.Sprintf("name %d", i)), false))
			_, err := store.Save(p)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	loaded, warns, err := store.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, warns)
	v, _ := loaded.Value("SessionName")
	s, _ := v.AsString()
	assert.True(t, strings.HasPrefix(s, "name "))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files left behind")
}
