// Package shell provides the interactive command-line interface for a
// running registry.
package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/objreg/pkg/kobject"
	"github.com/mash-protocol/objreg/pkg/sysfs"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Shell runs registry commands typed by a user.
type Shell struct {
	reg *kobject.Registry
	fs  *sysfs.FS
	out io.Writer

	// owned holds one reference on every node the shell created or was
	// handed through Adopt.
	owned map[*kobject.Node]struct{}
}

// New creates a Shell writing to out.
func New(reg *kobject.Registry, fs *sysfs.FS, out io.Writer) *Shell {
	return &Shell{
		reg:   reg,
		fs:    fs,
		out:   out,
		owned: make(map[*kobject.Node]struct{}),
	}
}

// Adopt transfers the caller's reference on n to the shell.
func (s *Shell) Adopt(n *kobject.Node) {
	s.owned[n] = struct{}{}
}

// Close drops every reference the shell owns. Nodes nobody else holds are
// removed and released.
func (s *Shell) Close() {
	for n := range s.owned {
		delete(s.owned, n)
		n.Put()
	}
}

// Run starts the interactive command loop on the terminal.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "objreg> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
		if !s.Exec(line) {
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
	}
}

// Exec runs one command line. It returns false when the user asked to quit.
func (s *Shell) Exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" || strings.HasPrefix(input, "#") {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "ls":
		s.cmdLs(args)
	case "tree":
		fmt.Fprint(s.out, s.fs.Tree())
	case "add":
		s.cmdAdd(args)
	case "group":
		s.cmdGroup(args)
	case "rm":
		s.cmdRm(args)
	case "mv":
		s.cmdMv(args)
	case "rename":
		s.cmdRename(args)
	case "cat":
		s.cmdCat(args)
	case "write", "w":
		s.cmdWrite(args)
	case "uevent":
		s.cmdUevent(args)
	case "suppress":
		s.cmdSuppress(args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Registry Commands:
  Hierarchy:
    ls [path]                  - List a directory
    tree                       - Show the whole hierarchy
    add <path>                 - Create and register a node
    group <path> [subsystem]   - Create and register a group
    rm <path>                  - Unregister a node and its subtree
    mv <path> <new-parent>     - Move a node ("/" for the top level)
    rename <path> <name>       - Rename a node

  Attributes:
    cat <path>                 - Read an attribute
    write <path> <value>       - Write an attribute or a uevent trigger

  Notifications:
    uevent <path> <action> [KEY=VALUE...] - Emit a notification
    suppress <path> on|off     - Turn notifications off or on

  General:
    help                       - Show this help
    exit                       - Leave the shell`)
}

// resolve looks up a registered node. The caller must Put the result.
func (s *Shell) resolve(path string) (*kobject.Node, bool) {
	n, err := s.reg.Lookup(path)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return nil, false
	}
	return n, true
}

// splitParent resolves the parent of path and returns it with the last
// segment. A nil parent means the top level.
func (s *Shell) splitParent(path string) (*kobject.Node, string, bool) {
	path = strings.TrimRight(path, "/")
	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if name == "" {
		fmt.Fprintln(s.out, "Error: empty name")
		return nil, "", false
	}
	if i <= 0 {
		return nil, name, true
	}
	parent, ok := s.resolve(path[:i])
	return parent, name, ok
}

func putIfSet(n *kobject.Node) {
	if n != nil {
		n.Put()
	}
}

func (s *Shell) cmdLs(args []string) {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	entries, err := s.fs.ReadDir(path)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	for _, e := range entries {
		fmt.Fprintln(s.out, e)
	}
}

func (s *Shell) cmdAdd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: add <path>")
		return
	}
	parent, name, ok := s.splitParent(args[0])
	if !ok {
		return
	}
	defer putIfSet(parent)

	n, err := s.reg.CreateAndAdd(name, parent)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.owned[n] = struct{}{}
}

func (s *Shell) cmdGroup(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: group <path> [subsystem]")
		return
	}
	parent, name, ok := s.splitParent(args[0])
	if !ok {
		return
	}
	defer putIfSet(parent)

	var policy *kobject.Policy
	if len(args) == 2 {
		subsystem := args[1]
		policy = &kobject.Policy{
			Name: func(*kobject.Node) string { return subsystem },
		}
	}
	g, err := s.reg.CreateGroupAndAdd(name, policy, parent)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.owned[g.Node()] = struct{}{}
}

func (s *Shell) cmdRm(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: rm <path>")
		return
	}
	n, ok := s.resolve(args[0])
	if !ok {
		return
	}
	s.reg.Remove(n)
	if _, held := s.owned[n]; held {
		delete(s.owned, n)
		n.Put()
	}
	n.Put()
}

func (s *Shell) cmdMv(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: mv <path> <new-parent>")
		return
	}
	n, ok := s.resolve(args[0])
	if !ok {
		return
	}
	defer n.Put()

	var parent *kobject.Node
	if strings.Trim(args[1], "/") != "" {
		if parent, ok = s.resolve(args[1]); !ok {
			return
		}
		defer parent.Put()
	}
	if err := s.reg.Move(n, parent); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdRename(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: rename <path> <name>")
		return
	}
	n, ok := s.resolve(args[0])
	if !ok {
		return
	}
	defer n.Put()
	if err := s.reg.Rename(n, args[1]); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdCat(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: cat <path>")
		return
	}
	data, err := s.fs.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, strings.TrimRight(string(data), "\n"))
}

func (s *Shell) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: write <path> <value>")
		fmt.Fprintln(s.out, "  Example: write /net/eth0/uevent change")
		return
	}
	value := strings.Trim(strings.Join(args[1:], " "), "\"'")
	n, err := s.fs.WriteFile(args[0], []byte(value))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Wrote %d bytes\n", n)
}

func (s *Shell) cmdUevent(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: uevent <path> <action> [KEY=VALUE...]")
		return
	}
	action, err := uevent.ParseAction(strings.ToLower(args[1]))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	n, ok := s.resolve(args[0])
	if !ok {
		return
	}
	defer n.Put()

	seq, err := s.reg.Notify(n, action, args[2:]...)
	switch {
	case err != nil:
		fmt.Fprintf(s.out, "Error: %v\n", err)
	case seq == 0:
		fmt.Fprintln(s.out, "Not emitted (suppressed or filtered)")
	}
}

func (s *Shell) cmdSuppress(args []string) {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		fmt.Fprintln(s.out, "Usage: suppress <path> on|off")
		return
	}
	n, ok := s.resolve(args[0])
	if !ok {
		return
	}
	defer n.Put()
	n.SetSuppressEvents(args[1] == "on")
}
