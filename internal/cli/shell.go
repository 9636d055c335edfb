package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
)

const shellHelp = `Commands:
  ls [path] [--refresh]          list a directory
  cd <path>                      change the current directory (.. for parent)
  pull [-d dest] <path>...       copy items to a local directory (default .)
  push <local>... <remote-dir>   copy local items to the device
  mvpull / mvpush                like pull / push, deleting sources after a verified copy
  find [-d dest] <dir> <glob>    pull the children of dir matching glob
  mkdir <path>                   create a directory
  mv <path> <new-name>           rename in place
  rm <path>...                   delete items
  refresh                        drop all cached listings
  info                           show device and capabilities
  help                           show this help
  exit                           leave the shell`

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse the device interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			return a.repl(ctx)
		},
	}
}

type shell struct {
	a   *app
	cwd string
}

func (a *app) repl(ctx context.Context) error {
	sh := &shell{a: a, cwd: dircache.Normalize(a.state.Config.SafeRoot)}
	p := a.prompter()
	a.printf("Type help for commands.\n")
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(a.out, "%s:%s> ", a.state.Device.DisplayName, sh.cwd)
		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			a.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		words, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		if words[0] == "exit" || words[0] == "quit" {
			return nil
		}
		if err := sh.run(ctx, words[0], words[1:]); err != nil {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
		}
	}
}

func (sh *shell) run(ctx context.Context, name string, args []string) error {
	a := sh.a
	// the device may have gone away between commands
	if err := a.connect(ctx); err != nil {
		return err
	}

	switch name {
	case "help", "?":
		a.printf("%s\n", shellHelp)
		return nil
	case "ls":
		refresh := false
		var rest []string
		for _, arg := range args {
			if arg == "--refresh" {
				refresh = true
				continue
			}
			rest = append(rest, arg)
		}
		if len(rest) > 1 {
			return errors.New("usage: ls [path] [--refresh]")
		}
		target := sh.cwd
		if len(rest) == 1 {
			target = resolveRemote(sh.cwd, rest[0])
		}
		return a.list(ctx, target, refresh)
	case "cd":
		if len(args) != 1 {
			return errors.New("usage: cd <path>")
		}
		return sh.cd(ctx, args[0])
	case "pull", "mvpull":
		dest, sources := localDest(args)
		if len(sources) == 0 {
			return fmt.Errorf("usage: %s [-d dest] <path>...", name)
		}
		items, err := a.selectRemote(ctx, sh.cwd, sources, "")
		if err != nil {
			return err
		}
		return a.pull(ctx, items, dest, name == "mvpull", false)
	case "find":
		dest, rest := localDest(args)
		if len(rest) != 2 {
			return errors.New("usage: find [-d dest] <dir> <glob>")
		}
		items, err := a.selectRemote(ctx, sh.cwd, rest[:1], rest[1])
		if err != nil {
			return err
		}
		return a.pull(ctx, items, dest, false, false)
	case "push", "mvpush":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <local>... <remote-dir>", name)
		}
		last := len(args) - 1
		return a.push(ctx, args[:last], resolveRemote(sh.cwd, args[last]), name == "mvpush", false)
	case "mkdir":
		if len(args) != 1 {
			return errors.New("usage: mkdir <path>")
		}
		return a.mkdir(ctx, resolveRemote(sh.cwd, args[0]))
	case "mv":
		if len(args) != 2 {
			return errors.New("usage: mv <path> <new-name>")
		}
		return a.rename(ctx, resolveRemote(sh.cwd, args[0]), args[1])
	case "rm":
		if len(args) == 0 {
			return errors.New("usage: rm <path>...")
		}
		return a.remove(ctx, sh.cwd, args, false)
	case "refresh":
		a.state.Cache.Clear()
		a.printf("Cache cleared.\n")
		return nil
	case "info":
		a.info()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
}

// cd moves into a directory after confirming it can be listed
func (sh *shell) cd(ctx context.Context, arg string) error {
	target := resolveRemote(sh.cwd, arg)
	if target != "/" {
		entry, err := sh.a.lister.Lookup(ctx, sh.a.state, target)
		if err != nil {
			return err
		}
		if !entry.IsDirLike() {
			return fmt.Errorf("%w: %s", domain.ErrNotDirectory, target)
		}
	}
	if _, err := sh.a.lister.List(ctx, sh.a.state, target); err != nil {
		return err
	}
	sh.cwd = target
	return nil
}

// localDest extracts a "-d dir" option, defaulting to the working directory
func localDest(args []string) (string, []string) {
	dest := "."
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-d" && i+1 < len(args) {
			dest = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return dest, rest
}
