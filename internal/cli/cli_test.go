package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"treesort/internal/config"
	"treesort/internal/devserver"
)

const fixturePage = `<html><body>
<form><input type="hidden" name="csrfmiddlewaretoken" value="page-token"></form>
<table id="result_list"><tbody>
<tr class="row1">
  <td><span class="treebeard-admin-drag" data-pk="1" data-depth="1" data-name="Home"></span></td>
  <td class="field-__str__">Home</td>
  <td><a class="icon-button treebeard-admin-icon-button edit" href="/pages/1/change/" data-list-url="/pages/1/list/">edit</a></td>
</tr>
<tr class="row2">
  <td><span class="treebeard-admin-drag" data-pk="2" data-depth="2" data-parent="1" data-name="Team"></span></td>
  <td class="field-__str__">Team</td>
  <td><a class="icon-button treebeard-admin-icon-button edit" href="/pages/2/change/" data-list-url="/pages/2/list/">edit</a></td>
</tr>
<tr class="row1">
  <td><span class="treebeard-admin-drag" data-pk="3" data-depth="1" data-name="Blog"></span></td>
  <td class="field-__str__">Blog</td>
  <td><a class="icon-button treebeard-admin-icon-button edit" href="/pages/3/change/" data-list-url="/pages/3/list/">edit</a></td>
</tr>
</tbody></table>
</body></html>`

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

func mustRun(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err != nil {
		t.Fatalf("command failed: treesort %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", args, err, stderr, stdout)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s", err, stdout)
	}
	data, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected JSON envelope with data object; got:\n%s", stdout)
	}
	return data
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "changelist.html")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func rowKeys(t *testing.T, data map[string]any) []string {
	t.Helper()
	rows, _ := data["rows"].([]any)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(map[string]any)["key"].(string))
	}
	return out
}

// newBackend serves three roots A, B, C from the reference backend.
func newBackend(t *testing.T) (*httptest.Server, *devserver.Store, map[string]string) {
	t.Helper()
	ctx := context.Background()
	st, err := devserver.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ids := map[string]string{}
	for _, name := range []string{"A", "B", "C"} {
		n, err := st.Add(ctx, nil, name)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids[name] = n.ID
	}
	srv, err := devserver.New(st, devserver.Options{
		CSRFToken: "tok",
		Variant:   config.VariantTreebeard,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("devserver.New: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return hs, st, ids
}

func outline(t *testing.T, st *devserver.Store) []string {
	t.Helper()
	entries, err := st.Flatten(context.Background(), nil)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

func TestRows_FromFile(t *testing.T) {
	page := writeFixture(t, fixturePage)

	data := mustRun(t, "rows", "--page", page, "--max-depth", "1")
	if got := rowKeys(t, data); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Fatalf("row keys: %v", got)
	}
	if data["variant"] != "treebeard" {
		t.Fatalf("variant: %v", data["variant"])
	}
	rows := data["rows"].([]any)
	team := rows[1].(map[string]any)
	if team["parentKey"] != "1" || team["depth"] != float64(2) {
		t.Fatalf("unexpected child row: %v", team)
	}
	if team["activatable"] != false || rows[0].(map[string]any)["activatable"] != true {
		t.Fatalf("activation must follow --max-depth: %v", rows)
	}
	if rows[0].(map[string]any)["detailUrl"] != "/pages/1/list/" {
		t.Fatalf("treebeard detail comes from the list url: %v", rows[0])
	}
}

func TestRows_TableFormat(t *testing.T) {
	page := writeFixture(t, fixturePage)

	stdout, stderr, err := runCLI(t, []string{"rows", "--page", page, "--format", "table"})
	if err != nil {
		t.Fatalf("rows --format table: %v\n%s", err, stderr)
	}
	out := string(stdout)
	for _, want := range []string{"key", "title", "Home", "Team", "Blog", "row2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRows_PageWithoutTableIsEmpty(t *testing.T) {
	page := writeFixture(t, `<html><body><p>No changelist here.</p></body></html>`)

	data := mustRun(t, "rows", "--page", page)
	if got := rowKeys(t, data); len(got) != 0 {
		t.Fatalf("expected zero rows, got %v", got)
	}
}

func TestRows_MissingPage(t *testing.T) {
	_, stderr, err := runCLI(t, []string{"rows"})
	if err == nil || !strings.Contains(string(stderr), "missing --page") {
		t.Fatalf("expected missing page error, got %v\n%s", err, stderr)
	}
}

func TestRows_FromBackendURL(t *testing.T) {
	hs, _, ids := newBackend(t)

	data := mustRun(t, "rows", "--page", hs.URL+"/nodes/")
	if got := rowKeys(t, data); !reflect.DeepEqual(got, []string{ids["A"], ids["B"], ids["C"]}) {
		t.Fatalf("row keys: %v", got)
	}
	first := data["rows"].([]any)[0].(map[string]any)
	if !strings.HasPrefix(first["detailUrl"].(string), hs.URL+"/nodes/") {
		t.Fatalf("relative links should resolve against the page url: %v", first["detailUrl"])
	}
}

func TestMove_DryRunPrintsForm(t *testing.T) {
	page := writeFixture(t, fixturePage)

	data := mustRun(t, "move", "--page", page, "--from", "2", "--to", "0", "--dry-run")
	if data["dryRun"] != true {
		t.Fatalf("expected dry run: %v", data)
	}
	form, _ := data["form"].(map[string]any)
	want := map[string]any{
		"node":                "3",
		"depth":               "1",
		"pos":                 "first",
		"target":              "1",
		"csrfmiddlewaretoken": "page-token",
	}
	if !reflect.DeepEqual(form, want) {
		t.Fatalf("form:\n got %v\nwant %v", form, want)
	}
	order, _ := data["order"].([]any)
	if len(order) != 3 || order[0] != "3" {
		t.Fatalf("order: %v", order)
	}
}

func TestMove_DryRunInPlaceIsSkipped(t *testing.T) {
	page := writeFixture(t, fixturePage)

	data := mustRun(t, "move", "--page", page, "--from", "1", "--to", "1", "--dry-run")
	if data["skipped"] != true || data["form"] != nil {
		t.Fatalf("expected a skipped move without form: %v", data)
	}
}

func TestMove_CommitsToBackend(t *testing.T) {
	hs, st, ids := newBackend(t)

	data := mustRun(t, "move",
		"--page", hs.URL+"/nodes/",
		"--update-url", hs.URL+"/update/",
		"--from", "2", "--to", "1",
	)
	res, _ := data["result"].(map[string]any)
	m, _ := res["mutation"].(map[string]any)
	if m["pos"] != "right-of" || m["target"] != ids["A"] || m["node"] != ids["C"] {
		t.Fatalf("mutation: %v", m)
	}
	if got := outline(t, st); !reflect.DeepEqual(got, []string{"A", "C", "B"}) {
		t.Fatalf("backend outline: %v", got)
	}

	again := mustRun(t, "rows", "--page", hs.URL+"/nodes/")
	if got := rowKeys(t, again); !reflect.DeepEqual(got, []string{ids["A"], ids["C"], ids["B"]}) {
		t.Fatalf("rows after move: %v", got)
	}
}

func TestMove_ApplicationErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"error","error":"node is locked"}`)
	}))
	t.Cleanup(srv.Close)
	page := writeFixture(t, fixturePage)

	_, stderr, err := runCLI(t, []string{"move", "--page", page, "--update-url", srv.URL, "--from", "0", "--to", "2"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "node is locked") {
		t.Fatalf("stderr should carry the server message:\n%s", stderr)
	}
}

func TestMove_TransportErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	page := writeFixture(t, fixturePage)

	_, stderr, err := runCLI(t, []string{"move", "--page", page, "--update-url", srv.URL, "--from", "0", "--to", "2"})
	if err == nil || !strings.Contains(string(stderr), "there has been a problem sorting the items") {
		t.Fatalf("expected the generic transport message, got %v\n%s", err, stderr)
	}
}

func TestMove_RequiresValidConfig(t *testing.T) {
	t.Setenv("TREESORT_UPDATE_URL", "")
	page := writeFixture(t, fixturePage)

	_, _, err := runCLI(t, []string{"move", "--page", page, "--from", "0", "--to", "1"})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected config.ErrInvalid, got %v", err)
	}
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	t.Setenv("TREESORT_MAX_DEPTH", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "treesort.toml")
	if err := os.WriteFile(cfgPath, []byte("max_depth = 1\nvariant = \"treebeard\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	page := writeFixture(t, fixturePage)

	data := mustRun(t, "rows", "--config", cfgPath, "--page", page)
	rows := data["rows"].([]any)
	if rows[1].(map[string]any)["activatable"] != false {
		t.Fatalf("config file max_depth should apply: %v", rows[1])
	}

	data = mustRun(t, "rows", "--config", cfgPath, "--page", page, "--max-depth", "0")
	rows = data["rows"].([]any)
	if rows[1].(map[string]any)["activatable"] != true {
		t.Fatalf("--max-depth should override the file: %v", rows[1])
	}
}

func TestInvalidLogLevel(t *testing.T) {
	page := writeFixture(t, fixturePage)

	_, stderr, err := runCLI(t, []string{"rows", "--page", page, "--log-level", "loud"})
	if err == nil || !strings.Contains(string(stderr), "invalid --log-level") {
		t.Fatalf("expected log level error, got %v\n%s", err, stderr)
	}
}

func TestDocs(t *testing.T) {
	data := mustRun(t, "docs")
	topics, _ := data["topics"].([]any)
	if len(topics) == 0 {
		t.Fatalf("expected topics")
	}

	data = mustRun(t, "docs", "wire")
	if md, _ := data["markdown"].(string); !strings.Contains(md, "target") {
		t.Fatalf("wire topic should describe the form: %q", md)
	}

	stdout, _, err := runCLI(t, []string{"docs", "keys", "--raw"})
	if err != nil || !strings.HasPrefix(strings.TrimSpace(string(stdout)), "#") {
		t.Fatalf("raw docs: %v\n%s", err, stdout)
	}

	_, stderr, err := runCLI(t, []string{"docs", "nope"})
	if err == nil || !strings.Contains(string(stderr), "unknown docs topic") {
		t.Fatalf("expected unknown topic error, got %v\n%s", err, stderr)
	}
}

func TestServe_StartsAndShutsDown(t *testing.T) {
	pr, pw := io.Pipe()
	cmd := NewRootCmd()
	cmd.SetOut(pw)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--token", "t0k"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	line, err := bufio.NewReader(pr).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read startup line: %v", err)
	}
	var env struct {
		Data struct {
			URL       string `json:"url"`
			UpdateURL string `json:"updateUrl"`
			CSRFToken string `json:"csrfToken"`
			Seeded    bool   `json:"seeded"`
		} `json:"data"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		t.Fatalf("startup line: %v\n%s", err, line)
	}
	if !env.Data.Seeded || env.Data.CSRFToken != "t0k" || !strings.HasSuffix(env.Data.UpdateURL, "/update/") {
		t.Fatalf("startup data: %+v", env.Data)
	}

	data := mustRun(t, "rows", "--page", env.Data.URL)
	rows, _ := data["rows"].([]any)
	if len(rows) == 0 {
		t.Fatalf("seeded backend should list rows")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not shut down")
	}
}

func TestOpenSession_CommitKeepsValidatedConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	t.Setenv("TREESORT_UPDATE_URL", srv.URL)

	cmd := NewRootCmd()
	cmd.SetErr(io.Discard)
	cmd.SetContext(context.Background())
	app := &App{Page: writeFixture(t, fixturePage), LogLevel: "info"}

	s, err := openSession(cmd, app, sessionOpts{commit: true, logOut: io.Discard})
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()
	if s.holder == nil {
		t.Fatalf("commit session should keep its config holder")
	}
	got, err := s.holder.Get()
	if err != nil {
		t.Fatalf("holder.Get: %v", err)
	}
	if got.UpdateURL != srv.URL || got.CSRFToken != "page-token" {
		t.Fatalf("holder config: %+v", got)
	}
	if !reflect.DeepEqual(got, s.cfg) {
		t.Fatalf("session config differs from holder: %+v vs %+v", s.cfg, got)
	}
	if err := s.holder.Set(got); !errors.Is(err, config.ErrAlreadySet) {
		t.Fatalf("expected ErrAlreadySet, got %v", err)
	}

	ro, err := openSession(cmd, app, sessionOpts{logOut: io.Discard})
	if err != nil {
		t.Fatalf("openSession read-only: %v", err)
	}
	defer ro.Close()
	if ro.holder != nil {
		t.Fatalf("read-only session should not hold a config")
	}
}
