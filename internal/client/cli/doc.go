// Package cli provides the interactive decksync command-line client.
//
// It wires configuration, the sync database, the local collection, the
// deck service client and the media synchronizer behind a small REPL:
//
//   - install / sync / uninstall a deck
//   - media: refresh the deck's media catalog and download what notes use
//   - upload: add local files to a deck's media
//   - notes: list a deck's notes, marking those edited locally
//   - status: last known state of each deck
//
// Progress events arrive on a status.Bus; downloads and uploads render a
// progress bar when stdout is a terminal.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
