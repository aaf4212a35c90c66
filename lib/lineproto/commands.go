// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// command is one protocol verb. arguments is the number of fields
// after the verb that the line is split into: the last one takes the
// rest of the line, so content may contain '|'. optional is how many
// of them may be omitted.
type command struct {
	arguments int
	optional  int
	usage     string
	login     bool
	run       func(s *Server, client *connection, args []string) (string, error)
}

var commands = map[string]command{
	"LOGIN":          {2, 0, "LOGIN|user|password", false, (*Server).login},
	"LOGOUT":         {0, 0, "LOGOUT", false, (*Server).logout},
	"WHOAMI":         {0, 0, "WHOAMI", true, (*Server).whoami},
	"QUIT":           {0, 0, "QUIT", false, (*Server).quit},
	"CREATE_USER":    {3, 0, "CREATE_USER|user|password|role", true, (*Server).createUser},
	"FORMAT":         {1, 1, "FORMAT[|blocks]", true, (*Server).format},
	"MKDIR":          {1, 0, "MKDIR|path", true, (*Server).mkdir},
	"CREATE_FILE":    {2, 1, "CREATE_FILE|path|content", true, (*Server).createFile},
	"WRITE":          {2, 0, "WRITE|path|content", true, (*Server).write},
	"READ":           {1, 0, "READ|path", true, (*Server).read},
	"READ_BLOCK":     {2, 1, "READ_BLOCK|index[|length]", true, (*Server).readBlock},
	"DELETE_FILE":    {1, 0, "DELETE_FILE|path", true, (*Server).deleteFile},
	"DELETE_DIR":     {1, 0, "DELETE_DIR|path", true, (*Server).deleteDirectory},
	"LIST":           {1, 1, "LIST[|path]", true, (*Server).list},
	"LIST_MY_FILES":  {0, 0, "LIST_MY_FILES", true, (*Server).listMyFiles},
	"LIST_ALL_FILES": {0, 0, "LIST_ALL_FILES", true, (*Server).listAllFiles},
	"VERSIONS":       {1, 1, "VERSIONS[|path]", true, (*Server).versions},
	"REVERT":         {1, 0, "REVERT|id", true, (*Server).revert},
	"LOG":            {0, 0, "LOG", true, (*Server).changeLog},
	"STATS":          {0, 0, "STATS", true, (*Server).stats},
	"VERIFY":         {0, 0, "VERIFY", true, (*Server).verify},
}

// execute runs one command line and returns the reply line.
func (s *Server) execute(client *connection, line string) string {
	verb, rest, hasArguments := strings.Cut(line, "|")
	verb = strings.ToUpper(verb)
	cmd, ok := commands[verb]
	if !ok {
		return errorReply(fserr.Validation("unknown command %q", verb))
	}

	var args []string
	if cmd.arguments > 0 && hasArguments {
		args = strings.SplitN(rest, "|", cmd.arguments)
	}
	if len(args) < cmd.arguments-cmd.optional || (cmd.arguments == 0 && hasArguments) {
		return errorReply(fserr.Validation("usage: %s", cmd.usage))
	}
	for i, arg := range args {
		args[i] = Unquote(arg)
	}

	if cmd.login && !client.session.LoggedIn() {
		return errorReply(fserr.Permission("login required"))
	}

	started := time.Now()
	response, err := cmd.run(s, client, args)
	if err != nil {
		client.logger.Info("command failed",
			"command", verb,
			"kind", fserr.KindOf(err),
			"error", err,
		)
		return errorReply(err)
	}
	client.logger.Debug("command completed",
		"command", verb,
		"user", client.session.User(),
		"duration", time.Since(started),
	)
	return response
}

// errorReply renders err as ERR|kind|message. Uncategorized errors
// report kind "io".
func errorReply(err error) string {
	kind := fserr.KindOf(err)
	if kind == "" {
		kind = fserr.KindIO
	}
	message := strings.NewReplacer("\n", " ", "\r", " ").Replace(err.Error())
	return "ERR|" + string(kind) + "|" + message
}

// resolve maps a client path into the caller's home directory unless
// it already names something under /home/.
func resolve(path, user string) string {
	home := engine.HomeDirectory(user)
	switch {
	case path == engine.HomeRoot || strings.HasPrefix(path, engine.HomeRoot+"/"):
		return namespace.Clean(path)
	case strings.HasPrefix(path, "/"):
		return namespace.Clean(home + path)
	default:
		return namespace.Clean(home + "/" + path)
	}
}

func optional(args []string, index int) string {
	if index < len(args) {
		return args[index]
	}
	return ""
}

func (s *Server) login(client *connection, args []string) (string, error) {
	session, err := s.engine.Login(args[0], args[1])
	if err != nil {
		return "", err
	}
	if client.session != nil {
		client.session.Logout()
	}
	client.session = session
	client.logger.Info("user logged in", "user", session.User(), "session", session.ID().String())
	return reply("LOGIN", session.User(), role(session.Admin())), nil
}

func (s *Server) logout(client *connection, args []string) (string, error) {
	if client.session != nil {
		client.logger.Info("user logged out", "user", client.session.User(), "operations", client.session.Operations())
		client.session.Logout()
		client.session = nil
	}
	return reply("LOGOUT"), nil
}

func (s *Server) whoami(client *connection, args []string) (string, error) {
	session := client.session
	return reply(
		session.User(),
		role(session.Admin()),
		strconv.Itoa(session.Operations()),
		session.LoginAt().UTC().Format(time.RFC3339),
		session.ID().String(),
	), nil
}

func (s *Server) quit(client *connection, args []string) (string, error) {
	client.closing = true
	return reply("BYE"), nil
}

func role(admin bool) string {
	if admin {
		return "admin"
	}
	return "user"
}

func (s *Server) createUser(client *connection, args []string) (string, error) {
	var admin bool
	switch strings.ToLower(args[2]) {
	case "admin", "1":
		admin = true
	case "user", "0":
	default:
		return "", fserr.Validation("role %q is not admin or user", args[2])
	}
	user, err := s.engine.CreateUser(client.session, args[0], args[1], admin)
	if err != nil {
		return "", err
	}
	return reply("USER_CREATED", user.Name, engine.HomeDirectory(user.Name)), nil
}

func (s *Server) format(client *connection, args []string) (string, error) {
	blocks := s.options.FormatBlocks
	if text := optional(args, 0); text != "" {
		parsed, err := strconv.ParseUint(text, 10, 32)
		if err != nil || parsed == 0 {
			return "", fserr.Validation("block count %q is not a positive integer", text)
		}
		blocks = uint32(parsed)
	}
	if err := s.engine.Format(client.session, blocks); err != nil {
		return "", err
	}
	if err := s.engine.Mount(); err != nil {
		return "", err
	}
	client.logger.Info("container formatted", "blocks", blocks, "user", client.session.User())
	return reply("FORMATTED", strconv.FormatUint(uint64(blocks), 10)), nil
}

func (s *Server) mkdir(client *connection, args []string) (string, error) {
	path := resolve(args[0], client.session.User())
	entry, err := s.engine.CreateDirectory(client.session, "/", path)
	if err != nil {
		return "", err
	}
	return reply("DIR_CREATED", strconv.Quote(entry.Path)), nil
}

func (s *Server) createFile(client *connection, args []string) (string, error) {
	path := resolve(args[0], client.session.User())
	parent, name := namespace.Split(path)
	result, err := s.engine.CreateFile(client.session, parent, name, []byte(optional(args, 1)))
	if err != nil {
		return "", err
	}
	return reply("FILE_CREATED", strconv.FormatUint(result.Version, 10), strconv.Quote(result.Path)), nil
}

func (s *Server) write(client *connection, args []string) (string, error) {
	path := resolve(args[0], client.session.User())
	result, err := s.engine.Write(client.session, path, []byte(args[1]))
	if err != nil {
		return "", err
	}
	return reply(
		"WRITTEN",
		strconv.FormatUint(result.Version, 10),
		strconv.FormatUint(uint64(result.Block), 10),
		strconv.FormatUint(uint64(result.Size), 10),
		strconv.Quote(result.Path),
	), nil
}

func (s *Server) read(client *connection, args []string) (string, error) {
	content, err := s.engine.ReadFile(resolve(args[0], client.session.User()))
	if err != nil {
		return "", err
	}
	return reply(strconv.Quote(string(content))), nil
}

func (s *Server) readBlock(client *connection, args []string) (string, error) {
	index, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return "", fserr.Validation("block index %q is not a number", args[0])
	}
	length := 0
	if text := optional(args, 1); text != "" {
		length, err = strconv.Atoi(text)
		if err != nil || length < 0 {
			return "", fserr.Validation("length %q is not a non-negative number", text)
		}
	}
	content, err := s.engine.Read(uint32(index), length)
	if err != nil {
		return "", err
	}
	return reply(strconv.Quote(string(content))), nil
}

func (s *Server) deleteFile(client *connection, args []string) (string, error) {
	path := resolve(args[0], client.session.User())
	entry, err := s.engine.Stat(path)
	if err != nil {
		return "", err
	}
	if entry.IsDir() {
		return "", fserr.Conflict("%s is a directory; use DELETE_DIR", entry.Path)
	}
	if _, err := s.engine.Delete(client.session, path); err != nil {
		return "", err
	}
	return reply("FILE_DELETED", strconv.Quote(entry.Path)), nil
}

func (s *Server) deleteDirectory(client *connection, args []string) (string, error) {
	path := resolve(args[0], client.session.User())
	entry, err := s.engine.Stat(path)
	if err != nil {
		return "", err
	}
	if !entry.IsDir() {
		return "", fserr.Conflict("%s is a file; use DELETE_FILE", entry.Path)
	}
	removed, err := s.engine.DeleteRecursive(client.session, path)
	if err != nil {
		return "", err
	}
	return reply("DIR_DELETED", strconv.Itoa(len(removed)), strconv.Quote(entry.Path)), nil
}

func (s *Server) list(client *connection, args []string) (string, error) {
	path := resolve(optional(args, 0), client.session.User())
	entries, err := s.engine.List(path)
	if err != nil {
		return "", err
	}
	fields := []string{strconv.Itoa(len(entries))}
	for _, entry := range entries {
		fields = append(fields, item(kindName(entry.Kind), strconv.FormatUint(entry.Size, 10), entry.Name))
	}
	return reply(fields...), nil
}

func kindName(kind namespace.Kind) string {
	if kind == namespace.Directory {
		return "dir"
	}
	return "file"
}

// listMyFiles lists the caller's home directory. Format leaves the
// tree empty, so the administrator has no home until one is made; that
// lists as empty rather than failing.
func (s *Server) listMyFiles(client *connection, args []string) (string, error) {
	result, err := s.listFiles(engine.HomeDirectory(client.session.User()))
	if fserr.Is(err, fserr.KindNotFound) {
		return reply("0"), nil
	}
	return result, err
}

func (s *Server) listAllFiles(client *connection, args []string) (string, error) {
	if !client.session.Admin() {
		return "", fserr.Permission("user %s is not an administrator", client.session.User())
	}
	return s.listFiles("/")
}

// listFiles reports every file below root as size,owner,"path".
func (s *Server) listFiles(root string) (string, error) {
	var fields []string
	err := s.engine.Walk(root, func(entry namespace.Entry) error {
		if !entry.IsDir() {
			fields = append(fields, item(strconv.FormatUint(entry.Size, 10), entry.Owner, entry.Path))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply(append([]string{strconv.Itoa(len(fields))}, fields...)...), nil
}

func (s *Server) versions(client *connection, args []string) (string, error) {
	var versions []versionlog.Version
	var err error
	if path := optional(args, 0); path != "" {
		versions, err = s.engine.History(resolve(path, client.session.User()))
	} else {
		versions, err = s.engine.ListVersions()
	}
	if err != nil {
		return "", err
	}
	fields := []string{strconv.Itoa(len(versions))}
	for _, version := range versions {
		status := "live"
		if version.Retired {
			status = "retired"
		}
		fields = append(fields, item(
			strconv.FormatUint(version.ID, 10),
			strconv.FormatUint(uint64(version.Block), 10),
			strconv.FormatUint(uint64(version.Size), 10),
			version.Timestamp.UTC().Format(time.RFC3339Nano),
			status,
			version.Path,
		))
	}
	return reply(fields...), nil
}

func (s *Server) revert(client *connection, args []string) (string, error) {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return "", fserr.Validation("version id %q is not a number", args[0])
	}
	result, err := s.engine.Revert(client.session, id)
	if err != nil {
		return "", err
	}
	return reply("REVERTED", strconv.FormatUint(result.Version, 10), strconv.Quote(result.Path)), nil
}

func (s *Server) changeLog(client *connection, args []string) (string, error) {
	changes, err := s.engine.ChangeLog()
	if err != nil {
		return "", err
	}
	fields := []string{strconv.Itoa(len(changes))}
	for _, change := range changes {
		fields = append(fields, item(
			change.Timestamp.UTC().Format(time.RFC3339Nano),
			change.Actor,
			string(change.Action),
			strconv.FormatUint(change.VersionID, 10),
			change.Path,
		))
	}
	return reply(fields...), nil
}

func (s *Server) stats(client *connection, args []string) (string, error) {
	stats, err := s.engine.Stats()
	if err != nil {
		return "", err
	}
	pairs := []struct {
		key   string
		value uint64
	}{
		{"total_blocks", uint64(stats.TotalBlocks)},
		{"free_blocks", uint64(stats.FreeBlocks)},
		{"used_blocks", uint64(stats.UsedBlocks)},
		{"block_size", uint64(stats.BlockSize)},
		{"total_size", stats.TotalSize},
		{"files", uint64(stats.Files)},
		{"directories", uint64(stats.Directories)},
		{"versions", uint64(stats.Versions)},
		{"changes", uint64(stats.Changes)},
		{"users", uint64(stats.Users)},
	}
	fields := make([]string, len(pairs))
	for i, pair := range pairs {
		fields[i] = fmt.Sprintf("%s=%d", pair.key, pair.value)
	}
	return reply(fields...), nil
}

func (s *Server) verify(client *connection, args []string) (string, error) {
	report, err := s.engine.Verify()
	if err != nil {
		return "", err
	}
	status := "healthy"
	if !report.Healthy() {
		status = "unhealthy"
	}
	fields := []string{status, strconv.Itoa(len(report.Issues))}
	for _, issue := range report.Issues {
		fields = append(fields, item(string(issue.Severity), issue.Message))
	}
	return reply(fields...), nil
}
