package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	e, ok := a.progress.latest()
	if !ok {
		return ""
	}
	return fmt.Sprintf(" (%s %s)", shortID(e.Deck), e.Status)
}

// Root runs the REPL on stdin until the user exits, rendering status
// events while commands run.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to decksync (type 'help' for commands)")

	events, cancel := a.bus.Subscribe(256)
	defer cancel()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go a.progress.run(ctx, events)

	runREPL(ctx, a, a.getStatus, a.reader)
}
