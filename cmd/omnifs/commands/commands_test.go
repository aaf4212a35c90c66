// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/config"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/service"
	"github.com/bureau-foundation/omnifs/lib/testutil"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// harness runs omnifs commands against a container in a temporary
// directory. Credentials always come from password files.
type harness struct {
	t         *testing.T
	dir       string
	container string
	passwords map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	dir := t.TempDir()
	h := &harness{
		t:         t,
		dir:       dir,
		container: filepath.Join(dir, "disk.omni"),
		passwords: make(map[string]string),
	}
	h.passwordFile(engine.DefaultAdminName, engine.DefaultAdminPassword)
	return h
}

func (h *harness) passwordFile(user, password string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, user+".pw")
	if err := os.WriteFile(path, []byte(password+"\n"), 0o600); err != nil {
		h.t.Fatal(err)
	}
	h.passwords[user] = path
	return path
}

// runAs executes an omnifs command as user and returns its standard
// output.
func (h *harness) runAs(user string, args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{}, args...)
	full = append(full, "-c", h.container, "-u", user, "--password-file", h.passwords[user])
	err := Root(&stdout, &stderr).Execute(full)
	return stdout.String(), err
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runAs(engine.DefaultAdminName, args...)
}

func (h *harness) mustRun(user string, args ...string) string {
	h.t.Helper()
	output, err := h.runAs(user, args...)
	if err != nil {
		h.t.Fatalf("omnifs %s: %v", strings.Join(args, " "), err)
	}
	return output
}

func (h *harness) localFile(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// formatWithAlice formats a 16-block container and adds user alice.
func (h *harness) formatWithAlice() {
	h.t.Helper()
	h.mustRun("admin", "format", "--blocks", "16")
	h.passwordFile("alice", "alice-password")
	h.mustRun("admin", "useradd", "alice", "--new-password-file", h.passwords["alice"])
}

var (
	writtenVersionPattern  = regexp.MustCompile(`: version (\d+), \d+ bytes`)
	revertedVersionPattern = regexp.MustCompile(`to version \d+ as version (\d+)`)
)

// versionFrom extracts a version id from put or revert output. Version
// ids are derived from the wall clock, so tests read them back rather
// than predicting them.
func versionFrom(t *testing.T, pattern *regexp.Regexp, output string) string {
	t.Helper()
	match := pattern.FindStringSubmatch(output)
	if match == nil {
		t.Fatalf("no version id in output %q", output)
	}
	return match[1]
}

func TestFormatPutCat(t *testing.T) {
	h := newHarness(t)
	output := h.mustRun("admin", "format", "--blocks", "16")
	if !strings.Contains(output, "16 blocks of 4096 bytes") {
		t.Errorf("format output = %q", output)
	}
	h.passwordFile("alice", "alice-password")
	if output := h.mustRun("admin", "useradd", "alice", "--new-password-file", h.passwords["alice"]); !strings.Contains(output, "created alice (user)") {
		t.Errorf("useradd output = %q", output)
	}

	notes := h.localFile("notes.txt", "hello from alice")
	output = h.mustRun("alice", "put", "/home/alice/notes.txt", notes)
	if !strings.Contains(output, ", 16 bytes in block 0") {
		t.Errorf("put output = %q", output)
	}
	versionFrom(t, writtenVersionPattern, output)
	if content := h.mustRun("alice", "cat", "/home/alice/notes.txt"); content != "hello from alice" {
		t.Errorf("cat = %q", content)
	}

	listing := h.mustRun("alice", "ls", "/home/alice")
	if !strings.Contains(listing, "notes.txt") || !strings.Contains(listing, "alice") {
		t.Errorf("ls output:\n%s", listing)
	}
	users := h.mustRun("admin", "users")
	if !strings.Contains(users, "admin") || !strings.Contains(users, "alice") {
		t.Errorf("users output:\n%s", users)
	}
}

func TestVersionsShowAndRevert(t *testing.T) {
	h := newHarness(t)
	h.formatWithAlice()

	first := versionFrom(t, writtenVersionPattern,
		h.mustRun("alice", "put", "/home/alice/draft", h.localFile("v1", "first draft")))
	second := versionFrom(t, writtenVersionPattern,
		h.mustRun("alice", "put", "/home/alice/draft", h.localFile("v2", "second draft")))
	if first == second {
		t.Fatalf("both writes produced version %s", first)
	}

	versions := h.mustRun("alice", "versions", "/home/alice/draft")
	if !strings.Contains(versions, "live") || strings.Count(versions, "/home/alice/draft") != 2 {
		t.Errorf("versions output:\n%s", versions)
	}
	if content := h.mustRun("alice", "show-version", first); content != "first draft" {
		t.Errorf("show-version %s = %q", first, content)
	}
	if content := h.mustRun("alice", "show-version", second); content != "second draft" {
		t.Errorf("show-version %s = %q", second, content)
	}

	output := h.mustRun("alice", "revert", first)
	if !strings.Contains(output, "to version "+first+" as version ") {
		t.Errorf("revert output = %q", output)
	}
	reverted := versionFrom(t, revertedVersionPattern, output)
	if reverted == first || reverted == second {
		t.Errorf("revert reused version id %s", reverted)
	}
	if content := h.mustRun("alice", "cat", "/home/alice/draft"); content != "first draft" {
		t.Errorf("cat after revert = %q", content)
	}

	log := h.mustRun("alice", "log", "--path", "/home/alice/draft")
	for _, action := range []string{"CREATE_FILE", "MODIFY", "REVERT"} {
		if !strings.Contains(log, action) {
			t.Errorf("log missing %s:\n%s", action, log)
		}
	}
}

func TestTouchMkdirTreeAndRemove(t *testing.T) {
	h := newHarness(t)
	h.formatWithAlice()

	h.mustRun("alice", "mkdir", "/home/alice/projects/omnifs")
	h.mustRun("alice", "touch", "/home/alice/projects/omnifs/README")

	tree := h.mustRun("alice", "tree", "/home")
	for _, want := range []string{"alice/", "projects/", "omnifs/", "README"} {
		if !strings.Contains(tree, want) {
			t.Errorf("tree missing %q:\n%s", want, tree)
		}
	}

	_, err := h.runAs("alice", "rm", "/home/alice/projects")
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("rm of non-empty directory = %v (exit %d)", err, cli.ExitCode(err))
	}
	output := h.mustRun("alice", "rm", "-r", "/home/alice/projects")
	if strings.Count(output, "removed ") != 3 {
		t.Errorf("rm -r output:\n%s", output)
	}
	_, err = h.runAs("alice", "ls", "/home/alice/projects")
	if cli.ExitCode(err) != cli.ExitNotFound {
		t.Errorf("ls after rm = %v (exit %d)", err, cli.ExitCode(err))
	}
}

func TestExitCodes(t *testing.T) {
	h := newHarness(t)
	h.formatWithAlice()

	_, err := h.runAs("alice", "cat", "/home/alice/missing")
	if got := cli.ExitCode(err); got != cli.ExitNotFound {
		t.Errorf("cat missing: exit %d (%v)", got, err)
	}

	h.passwordFile("alice", "wrong")
	_, err = h.runAs("alice", "mkdir", "/home/alice/x")
	if got := cli.ExitCode(err); got != cli.ExitPermission {
		t.Errorf("wrong password: exit %d (%v)", got, err)
	}

	_, err = h.run("read-block", "not-a-number")
	if got := cli.ExitCode(err); got != cli.ExitValidation {
		t.Errorf("bad block index: exit %d (%v)", got, err)
	}

	if err := os.WriteFile(h.container, []byte("not a container at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = h.run("stats")
	if got := cli.ExitCode(err); got != cli.ExitCorruption {
		t.Errorf("stats on garbage: exit %d (%v)", got, err)
	}
}

func TestReadBlockStatsVerify(t *testing.T) {
	h := newHarness(t)
	h.formatWithAlice()
	h.mustRun("alice", "put", "/home/alice/a", h.localFile("a", "block zero text"))

	if output := h.mustRun("alice", "read-block", "0"); output != "block zero text\n" {
		t.Errorf("read-block 0 = %q", output)
	}
	if output := h.mustRun("alice", "read-block", "0", "--length", "5"); output != "block\n" {
		t.Errorf("read-block 0 --length 5 = %q", output)
	}

	stats := h.mustRun("admin", "stats")
	for _, want := range []string{"blocks", "versions", "users"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats missing %q:\n%s", want, stats)
		}
	}
	if verify := h.mustRun("admin", "verify"); !strings.Contains(verify, "healthy") {
		t.Errorf("verify output:\n%s", verify)
	}
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.formatWithAlice()
	h.mustRun("alice", "mkdir", "/home/alice/docs")
	h.mustRun("alice", "put", "/home/alice/docs/guide", h.localFile("guide", "read me"))

	archive := filepath.Join(h.dir, "backup.osnap")
	h.mustRun("admin", "export", "--compression", "lz4", archive)

	h.container = filepath.Join(h.dir, "restored.omni")
	h.mustRun("admin", "format", "--blocks", "16")
	output := h.mustRun("admin", "import", archive)
	if !strings.Contains(output, "1 files") {
		t.Errorf("import output = %q", output)
	}
	if content := h.mustRun("admin", "cat", "/home/alice/docs/guide"); content != "read me" {
		t.Errorf("restored content = %q", content)
	}
	log := h.mustRun("admin", "log", "-n", "1")
	if !strings.Contains(log, string(versionlog.ActionRestore)) {
		t.Errorf("last change:\n%s", log)
	}
}

func TestRemoteStatus(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	fixture := testutil.MountedEngine(t, 16)
	socketPath := filepath.Join(testutil.SocketDir(t), "omnifs.sock")
	server := service.NewSocketServer(socketPath, nil)
	service.RegisterEngine(server, fixture.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive[error](t, done, 5*time.Second, "socket server did not stop")
	})

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server never became ready")

	var stdout bytes.Buffer
	err := Root(&stdout, &bytes.Buffer{}).Execute([]string{"remote", "status", "--socket", socketPath})
	if err != nil {
		t.Fatalf("remote status: %v", err)
	}
	if !strings.Contains(stdout.String(), "mounted") || !strings.Contains(stdout.String(), "blocks") {
		t.Errorf("remote status output:\n%s", stdout.String())
	}

	err = Root(&bytes.Buffer{}, &bytes.Buffer{}).Execute([]string{"remote", "status"})
	if got := cli.ExitCode(err); got != cli.ExitValidation {
		t.Errorf("remote status without socket: exit %d (%v)", got, err)
	}
}

func TestFilterChanges(t *testing.T) {
	changes := []versionlog.Change{
		{Path: "/", Action: versionlog.ActionFormat},
		{Path: "/a", Action: versionlog.ActionCreateFile},
		{Path: "/b", Action: versionlog.ActionCreateFile},
		{Path: "/a", Action: versionlog.ActionModify},
	}
	if got := filterChanges(changes, "a/", 0); len(got) != 2 || got[1].Action != versionlog.ActionModify {
		t.Errorf("filter by path = %+v", got)
	}
	if got := filterChanges(changes, "", 1); len(got) != 1 || got[0].Path != "/a" {
		t.Errorf("limit 1 = %+v", got)
	}
	if got := filterChanges(changes, "", 10); len(got) != 4 {
		t.Errorf("limit beyond length = %d changes", len(got))
	}
}
