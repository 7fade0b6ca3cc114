package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishcatch/internal/repository"
)

const (
	baseText = "<html>hello world</html>"
	baseHash = "0E7000EF20300008000808002CE00AE8000020C28300880002E02C3022E0A3C2CCC808"
)

func catalogue(edit bool) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Sign in</title></head><body><ul>")
	for i := 0; i < 40; i++ {
		if edit && i == 7 {
			b.WriteString(`<li id="item-7">entry seven of the catalogue</li>`)
			continue
		}
		fmt.Fprintf(&b, `<li id="item-%d">entry %d of the catalogue</li>`, i, i)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
log:
  level: error
domains:
  enterprise:
    - "*.corp.example"
storage:
  backend: bolt
  path: %s
alert:
  file: %s
`, filepath.Join(dir, "phishcatch.db"), filepath.Join(dir, "alerts.jsonl"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phishcatch.yaml"), []byte(cfg), 0644))
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHashCommand(t *testing.T) {
	dir := writeConfig(t)

	out, err := run(t, "", "-c", dir, "hash", "--text", baseText)
	require.NoError(t, err)
	assert.Equal(t, baseHash+"\n", out)

	out, err = run(t, baseText, "-c", dir, "hash", "-")
	require.NoError(t, err)
	assert.Equal(t, baseHash+"\n", out)

	_, err = run(t, "", "-c", dir, "hash", "--strict", "--text", baseText)
	assert.Error(t, err)
}

func TestDiffCommand(t *testing.T) {
	dir := writeConfig(t)

	out, err := run(t, "", "-c", dir, "diff", baseHash, baseHash)
	require.NoError(t, err)
	assert.Equal(t, "0\tmatch\n", out)

	_, err = run(t, "", "-c", dir, "diff", baseHash, "XYZ")
	assert.Error(t, err)
}

func TestBaselineCheckListPrune(t *testing.T) {
	dir := writeConfig(t)
	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(catalogue(false)), 0644))

	out, err := run(t, "", "-c", dir, "baseline", "https://login.corp.example/", "--file", page)
	require.NoError(t, err)
	assert.Contains(t, out, "added, 1 baselines")

	_, err = run(t, "", "-c", dir, "baseline", "https://elsewhere.example/", "--file", page)
	assert.ErrorContains(t, err, "DANGEROUS")

	out, err = run(t, catalogue(true), "-c", dir, "check", "https://phish.example/login", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "CLONE of login.corp.example")

	alerts, err := os.ReadFile(filepath.Join(dir, "alerts.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(alerts), `"url":"https://phish.example"`)

	out, err = run(t, "", "-c", dir, "check", "http://localhost:3000/")
	require.NoError(t, err)
	assert.Contains(t, out, "IGNORED")

	out, err = run(t, "", "-c", dir, "list", "--json")
	require.NoError(t, err)
	var entries []repository.DatedFingerprint
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "login.corp.example", entries[0].Source)

	out, err = run(t, "", "-c", dir, "prune", "--max-entries", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 baselines")

	out, err = run(t, "", "-c", dir, "list")
	require.NoError(t, err)
	assert.Equal(t, "ADDED  HASH  SOURCE\n", out)
}

func TestScanWritesReport(t *testing.T) {
	dir := writeConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, catalogue(true))
	}))
	defer srv.Close()

	list := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("# local pages\n"+srv.URL+"/a\n\n"), 0644))
	report := filepath.Join(t.TempDir(), "out", "report.json")

	out, err := run(t, "", "-c", dir, "scan", "--list", list, "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "IGNORED")

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"urls_scanned": 1`)

	_, err = run(t, "", "-c", dir, "scan")
	assert.Error(t, err)
}

func TestScanFollowsLinks(t *testing.T) {
	dir := writeConfig(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><a href="/login">login</a><a href="/reset#form">reset</a>`+catalogue(false)+`</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report := filepath.Join(t.TempDir(), "report.json")
	_, err := run(t, "", "-c", dir, "scan", "--depth", "1", "--report", report, srv.URL+"/")
	require.NoError(t, err)

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	var got struct {
		Summary struct {
			URLsScanned int `json:"urls_scanned"`
		} `json:"summary"`
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 3, got.Summary.URLsScanned)
	assert.Equal(t, srv.URL+"/", got.Results[0].URL)
	assert.Equal(t, srv.URL+"/login", got.Results[1].URL)
	assert.Equal(t, srv.URL+"/reset", got.Results[2].URL)
}

func TestPruneFlagsDefaultToConfig(t *testing.T) {
	dir := writeConfig(t)

	out, err := run(t, "", "-c", dir, "prune", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "defaults to fingerprint.expiry_days")
	assert.Contains(t, out, "defaults to fingerprint.max_entries")
	assert.NotContains(t, out, "(default 30)")

	_, err = run(t, "", "-c", dir, "prune", "--expiry-days", "0")
	assert.Error(t, err)

	out, err = run(t, "", "-c", dir, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 baselines")
}
