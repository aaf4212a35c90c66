// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/omnifs/lib/clock"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/testutil"
)

// startServer serves e on a loopback port and returns its address.
// The server is shut down when the test completes.
func startServer(t *testing.T, e *engine.Engine, options Options) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer(e, options)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive[error](t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return server.Addr().String()
}

type client struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
}

func dial(t *testing.T, address string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &client{t: t, conn: conn, scanner: scanner}
}

// send writes one command and returns the reply split into fields.
func (c *client) send(line string) []string {
	c.t.Helper()
	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("sending %q: %v", line, err)
	}
	if !c.scanner.Scan() {
		c.t.Fatalf("no reply to %q: %v", line, c.scanner.Err())
	}
	return SplitFields(c.scanner.Text())
}

// ok sends a command that must succeed and returns the fields after OK.
func (c *client) ok(line string) []string {
	c.t.Helper()
	fields := c.send(line)
	if fields[0] != "OK" {
		c.t.Fatalf("%q: got %v, want OK", line, fields)
	}
	return fields[1:]
}

// fail sends a command that must fail with kind.
func (c *client) fail(line, kind string) {
	c.t.Helper()
	fields := c.send(line)
	if fields[0] != "ERR" || fields[1] != kind {
		c.t.Fatalf("%q: got %v, want ERR|%s", line, fields, kind)
	}
}

func TestAliceSession(t *testing.T) {
	fixture := testutil.MountedEngine(t, 32)
	address := startServer(t, fixture.Engine, Options{})

	admin := dial(t, address)
	admin.ok("LOGIN|admin|admin123")
	created := admin.ok("CREATE_USER|alice|wonderland|user")
	if created[1] != "alice" || created[2] != "/home/alice" {
		t.Errorf("CREATE_USER reply = %v", created)
	}

	alice := dial(t, address)
	alice.fail("WRITE|notes.txt|hi", "permission")
	if got := alice.ok("LOGIN|alice|wonderland"); got[2] != "user" {
		t.Errorf("LOGIN reply = %v", got)
	}
	alice.ok("MKDIR|docs")
	first := alice.ok("WRITE|docs/todo.txt|buy milk|eggs")
	if Unquote(first[4]) != "/home/alice/docs/todo.txt" {
		t.Errorf("WRITE path = %s", first[4])
	}
	alice.ok(`WRITE|/docs/todo.txt|"line one\nline two"`)

	content := alice.ok("READ|docs/todo.txt")
	if Unquote(content[0]) != "line one\nline two" {
		t.Errorf("READ = %q", Unquote(content[0]))
	}

	history := alice.ok("VERSIONS|docs/todo.txt")
	if history[0] != "2" {
		t.Fatalf("VERSIONS count = %s, want 2", history[0])
	}
	alice.ok("REVERT|" + first[1])
	content = alice.ok("READ|/home/alice/docs/todo.txt")
	if Unquote(content[0]) != "buy milk|eggs" {
		t.Errorf("READ after revert = %q", Unquote(content[0]))
	}

	listing := alice.ok("LIST|docs")
	if listing[0] != "1" || listing[1] != `file,13,"todo.txt"` {
		t.Errorf("LIST = %v", listing)
	}
	mine := alice.ok("LIST_MY_FILES")
	if mine[0] != "1" || !strings.HasSuffix(mine[1], `"/home/alice/docs/todo.txt"`) {
		t.Errorf("LIST_MY_FILES = %v", mine)
	}
	alice.fail("LIST_ALL_FILES", "permission")
	if all := admin.ok("LIST_ALL_FILES"); all[0] != "1" {
		t.Errorf("LIST_ALL_FILES = %v", all)
	}

	who := alice.ok("WHOAMI")
	if who[0] != "alice" || who[1] != "user" {
		t.Errorf("WHOAMI = %v", who)
	}
	if operations, _ := strconv.Atoi(who[2]); operations != 4 {
		t.Errorf("operations = %s, want 4", who[2])
	}

	alice.fail("DELETE_FILE|docs", "conflict")
	alice.ok("DELETE_DIR|docs")
	alice.fail("READ|docs/todo.txt", "not_found")

	changes := alice.ok("LOG")
	if count, _ := strconv.Atoi(changes[0]); count != len(changes)-1 {
		t.Errorf("LOG count %d does not match %d items", count, len(changes)-1)
	}
	last := strings.Split(changes[len(changes)-1], ",")
	if last[1] != "alice" || last[2] != "DELETE" {
		t.Errorf("last change = %v", last)
	}

	if got := alice.ok("QUIT"); got[0] != "BYE" {
		t.Errorf("QUIT = %v", got)
	}
}

func TestErrorsAndUsage(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	address := startServer(t, fixture.Engine, Options{})
	c := dial(t, address)

	c.fail("HELLO", "validation")
	c.fail("LOGIN|admin", "validation")
	c.fail("LOGIN|admin|wrong", "permission")
	c.fail("STATS", "permission")
	c.ok("LOGIN|admin|admin123")
	c.fail("LOGOUT|now", "validation")
	c.fail("READ_BLOCK|x", "validation")
	c.fail("READ_BLOCK|99", "validation")
	c.fail("REVERT|12345", "not_found")
	c.fail("CREATE_USER|bob|pw|superuser", "validation")
	c.fail("WRITE|/home/nobody/x|data", "not_found")
	c.fail("WRITE|big|"+strings.Repeat("x", 4097), "capacity")

	stats := c.ok("STATS")
	if stats[0] != "total_blocks=8" || stats[2] != "used_blocks=0" {
		t.Errorf("STATS = %v", stats)
	}
	verify := c.ok("VERIFY")
	if verify[0] != "healthy" || verify[1] != "0" {
		t.Errorf("VERIFY = %v", verify)
	}

	c.ok("LOGOUT")
	c.fail("WHOAMI", "permission")
}

func TestReadBlock(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	address := startServer(t, fixture.Engine, Options{})
	c := dial(t, address)
	c.ok("LOGIN|admin|admin123")
	c.ok("CREATE_USER|alice|pw|user")
	c.ok("LOGIN|alice|pw")
	written := c.ok("WRITE|a|abcdef")

	whole := c.ok("READ_BLOCK|" + written[2])
	if Unquote(whole[0]) != "abcdef" {
		t.Errorf("READ_BLOCK = %q", Unquote(whole[0]))
	}
	prefix := c.ok("READ_BLOCK|" + written[2] + "|3")
	if Unquote(prefix[0]) != "abc" {
		t.Errorf("READ_BLOCK with length = %q", Unquote(prefix[0]))
	}
}

func TestFormatOverProtocol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.omni")
	e, err := engine.New(engine.Options{
		Path:         path,
		PasswordCost: bcrypt.MinCost,
		Clock:        clock.Fake(testutil.Epoch),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	address := startServer(t, e, Options{FormatBlocks: 16})

	c := dial(t, address)
	c.ok("LOGIN|admin|admin123")
	c.fail("STATS", "not_mounted")
	c.fail("FORMAT|zero", "validation")
	if got := c.ok("FORMAT"); got[1] != "16" {
		t.Errorf("FORMAT = %v", got)
	}
	if stats := c.ok("STATS"); stats[0] != "total_blocks=16" {
		t.Errorf("STATS after FORMAT = %v", stats)
	}
	c.ok("CREATE_USER|bob|pw|admin")
	c.ok("LOGIN|bob|pw")
	if who := c.ok("WHOAMI"); who[1] != "admin" {
		t.Errorf("bob role = %s", who[1])
	}
}

func TestReformatEndsOtherSessions(t *testing.T) {
	fixture := testutil.MountedEngine(t, 16)
	address := startServer(t, fixture.Engine, Options{FormatBlocks: 16})

	admin := dial(t, address)
	admin.ok("LOGIN|admin|admin123")
	admin.ok("CREATE_USER|alice|wonderland|user")
	alice := dial(t, address)
	alice.ok("LOGIN|alice|wonderland")
	alice.ok("MKDIR|docs")

	admin.ok("FORMAT")
	alice.fail("MKDIR|more", "permission")
	alice.fail("WRITE|notes.txt|after format", "permission")
	alice.fail("LOGIN|alice|wonderland", "permission")

	// The formatting session stays valid on the new container.
	admin.ok("CREATE_USER|alice|looking-glass|user")
	alice.ok("LOGIN|alice|looking-glass")
	alice.ok("MKDIR|docs")
}

func TestListMyFilesWithoutHome(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	address := startServer(t, fixture.Engine, Options{})

	admin := dial(t, address)
	admin.ok("LOGIN|admin|admin123")
	if mine := admin.ok("LIST_MY_FILES"); len(mine) != 1 || mine[0] != "0" {
		t.Errorf("LIST_MY_FILES for admin without a home = %v", mine)
	}
	admin.ok("MKDIR|/home/admin")
	admin.ok("WRITE|todo|x")
	if mine := admin.ok("LIST_MY_FILES"); mine[0] != "1" {
		t.Errorf("LIST_MY_FILES after creating home = %v", mine)
	}
}

func TestIdleConnectionIsClosed(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	address := startServer(t, fixture.Engine, Options{IdleTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1)
	if _, err := conn.Read(buffer); err == nil {
		t.Error("idle connection received data instead of being closed")
	} else if errors, ok := err.(net.Error); ok && errors.Timeout() {
		t.Error("server did not close the idle connection")
	}
}

func TestOverlongLineClosesConnection(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	address := startServer(t, fixture.Engine, Options{})

	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	go conn.Write([]byte(strings.Repeat("x", MaxLineSize+10) + "\n"))
	buffer := make([]byte, 1)
	if _, err := conn.Read(buffer); err == nil {
		t.Error("overlong line got a reply")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"notes.txt", "/home/alice/notes.txt"},
		{"/notes.txt", "/home/alice/notes.txt"},
		{"docs/a", "/home/alice/docs/a"},
		{"/home/bob/x", "/home/bob/x"},
		{"/home", "/home"},
		{"", "/home/alice"},
		{"/", "/home/alice"},
		{"/homework", "/home/alice/homework"},
	}
	for _, test := range tests {
		if got := resolve(test.path, "alice"); got != test.want {
			t.Errorf("resolve(%q) = %q, want %q", test.path, got, test.want)
		}
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"OK|BYE", []string{"OK", "BYE"}},
		{`OK|"a|b"|c`, []string{"OK", `"a|b"`, "c"}},
		{`OK|"quote \" and | pipe"`, []string{"OK", `"quote \" and | pipe"`}},
		{`OK|file,3,"x|y"|dir,0,"z"`, []string{"OK", `file,3,"x|y"`, `dir,0,"z"`}},
		{"OK|", []string{"OK", ""}},
	}
	for _, test := range tests {
		got := SplitFields(test.line)
		if strings.Join(got, "\x00") != strings.Join(test.want, "\x00") {
			t.Errorf("SplitFields(%q) = %q, want %q", test.line, got, test.want)
		}
	}
	if got := Unquote(`"a\nb"`); got != "a\nb" {
		t.Errorf("Unquote = %q", got)
	}
	if got := Unquote("plain"); got != "plain" {
		t.Errorf("Unquote(plain) = %q", got)
	}
}
