package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dubbadge/internal/dataset"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

const savedPage = `<html><body><div id="grid">
  <a class="l555" href="/entry?id=555"><div data-media-entry-card-body="true"></div></a>
  <a class="l777" href="/entry?id=777"><div data-media-entry-card-body="true"></div></a>
</div></body></html>`

type cliEnv struct {
	configPath string
	dir        string
}

func setupCLITestEnv(t *testing.T) cliEnv {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/normal/dubbed_english.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dubbed":[100]}`))
	})
	mux.HandleFunc("/low/dubbed_spanish.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dubbed":[100,200]}`))
	})
	mux.HandleFunc("/mappings.jsonl", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"mal_id":100,"anilist_id":555}` + "\n" + `{"mal_id":200,"anilist_id":777}` + "\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`dataset:
  dubbed_url_template: %s/{confidence}/dubbed_{language}.json
  mapping_url: %s/mappings.jsonl
settings:
  store: sqlite
  path: %s
logging:
  development: false
  level: error
`, srv.URL, srv.URL, filepath.Join(dir, "settings.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return cliEnv{configPath: path, dir: dir}
}

func runCLI(t *testing.T, env cliEnv, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDatasetCommandSummary(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "dataset")
	require.NoError(t, err)
	var info dataset.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.True(t, info.Ready)
	require.Equal(t, "Active: english (1)", info.Status)
	require.Equal(t, 1, info.Identifiers)
}

func TestDatasetCommandListsIDs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "dataset", "--language", "spanish", "--ids")
	require.NoError(t, err)
	require.Equal(t, []string{"555", "777"}, strings.Fields(out))
}

func TestDatasetCommandRejectsUnknownLanguage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "dataset", "--language", "klingon")
	require.ErrorIs(t, err, settings.ErrInvalid)
}

func TestDryRunAnnotatesSavedPage(t *testing.T) {
	env := setupCLITestEnv(t)
	page := filepath.Join(env.dir, "page.html")
	annotated := filepath.Join(env.dir, "annotated.html")
	require.NoError(t, os.WriteFile(page, []byte(savedPage), 0o600))

	out, err := runCLI(t, env, "dryrun", "--page", page, "--out", annotated, "--color", "green")
	require.NoError(t, err)

	var res struct {
		Action string `json:"action"`
		Pass   struct {
			Elements int            `json:"elements"`
			Outcomes map[string]int `json:"outcomes"`
		} `json:"pass"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "reload", res.Action)
	require.Equal(t, 2, res.Pass.Elements)
	require.Equal(t, 1, res.Pass.Outcomes["annotated"])
	require.Equal(t, 1, res.Pass.Outcomes["not-dubbed"])

	html, err := os.ReadFile(annotated)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(html), "seanime-dub-badge-wrapper"))
	require.Contains(t, string(html), "bg-green-600")
}

func TestDryRunRequiresPage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "dryrun")
	require.ErrorContains(t, err, "--page")
}

func TestSettingsSetPersists(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "settings", "show")
	require.NoError(t, err)
	var snap settings.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Equal(t, settings.Defaults(), snap)

	_, err = runCLI(t, env, "settings", "set", "--language", "spanish", "--color", "orange")
	require.NoError(t, err)

	out, err = runCLI(t, env, "settings", "show")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Equal(t, "spanish", snap.Language)
	require.Equal(t, "low", snap.Confidence)
	require.Equal(t, settings.ColorOrange, snap.Color)
}

func TestSettingsSetRejectsInvalid(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "settings", "set", "--position", "above")
	require.ErrorIs(t, err, settings.ErrInvalid)
}
