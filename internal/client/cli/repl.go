package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Install(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Media(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Uninstall(ctx context.Context, args []string) error
	Notes(ctx context.Context, args []string) error
	Status(ctx context.Context) error
}

const helpText = `Available commands:
  install <deck>           register a deck and pull all its notes
  sync <deck>              pull updates since the last sync
  media <deck>             refresh the media catalog and download missing files
  upload <deck> <file>...  add local files to the deck's media
  uninstall <deck>         forget a deck (collection notes stay)
  notes <deck>             list the deck's notes, * marks local edits
  status                   last state of each deck
  exit | quit`

// runREPL reads commands line by line from reader and dispatches them to a.
// Command errors are printed and the loop goes on. It returns on EOF, on
// "exit" or "quit", or when ctx is cancelled between commands.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("decksync%s> ", statusFn()))
		line, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			printlnFn("error:", err)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if err := dispatch(ctx, a, cmd, args); err != nil {
			printlnFn("error:", err)
		}
	}
}

var errUnknownCommand = errors.New("unknown command")

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "install":
		return a.Install(ctx, args)
	case "sync":
		return a.Sync(ctx, args)
	case "media":
		return a.Media(ctx, args)
	case "upload":
		return a.Upload(ctx, args)
	case "uninstall":
		return a.Uninstall(ctx, args)
	case "notes":
		return a.Notes(ctx, args)
	case "status":
		return a.Status(ctx)
	default:
		return fmt.Errorf("%w: %s (type 'help')", errUnknownCommand, cmd)
	}
}
