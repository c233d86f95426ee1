// Package media persists the per-deck media catalog: which files a deck
// uses, their content hashes and whether they may be downloaded. File bytes
// are never stored here.
//
// Catalog rows are keyed by (name, deck) and replaced wholesale on refresh.
// Hash lookups skip rows whose hash is NULL.
//
// Typical Usage
//
//	repo := media.NewSQLiteRepository(tx)
//	_ = repo.Upsert(ctx, assets)
//	names, _ := repo.DownloadableNames(ctx, deckID)
//	local, ok, _ := repo.NameWithHash(ctx, deckID, hash, incomingName)
package media
