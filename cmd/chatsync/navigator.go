package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/GetStream/chatsync/store"
)

// navigator maps the command being run onto a location. The current path is
// the command path, e.g. /conversations/show/c1, and a redirect to the login
// path tells the user to log in again.
type navigator struct {
	mu   sync.Mutex
	path string
	out  io.Writer

	redirected bool
}

func newNavigator(out io.Writer) *navigator {
	return &navigator{path: "/", out: out}
}

// enter records the command path. args are appended as path segments.
func (n *navigator) enter(commandPath string, args []string) {
	segs := strings.Fields(commandPath)
	if len(segs) > 0 {
		segs = segs[1:]
	}
	segs = append(segs, args...)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = "/" + strings.Join(segs, "/")
}

func (n *navigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *navigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.redirected {
		return
	}
	n.redirected = true
	if path == store.LoginPath {
		fmt.Fprintln(n.out, "Your session has expired or you are not logged in. Run 'chatsync login <username>' first.")
		return
	}
	fmt.Fprintf(n.out, "Continue with: %s\n", command(path))
}

// command turns a saved path back into the command line that produced it.
func command(path string) string {
	return "chatsync " + strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", " ")
}
