// Package client talks to the remote deck service over HTTP.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) used by the
//     sync services: paginated note updates, note types, the media catalog
//     and the deck's media upload target.
//  2. A concrete HTTP implementation (see HTTPClient) that authenticates with
//     the configured API token, follows "next" links lazily and decompresses
//     gzip bodies whether or not the server labels them.
//
// # Raw shapes
//
// The service is inconsistent about some note attributes: fields and tags
// may arrive as JSON structures or as strings holding JSON. Each such
// attribute is decoded into a rawJSONish value first and normalized into
// models.Note at the boundary, so nothing past this package sees the
// difference.
//
// # Error Handling
//
// Non-2xx responses are returned as *RemoteRequestError. Callers classify
// them with errors.Is: ErrUnauthorized for 401/403 and ErrUnavailable for
// 5xx and transport failures.
package client
