// Package pullsync lets a client discover which files a server holds,
// work out which of them it is missing locally,
// and pull just those files over a single TCP connection.
//
// Files are identified by content,
// not by name:
// each side describes its files as an Inventory of FileRecords,
// each pairing a name with the lowercase hex SHA2-256 digest of the file's bytes.
// Two files with the same digest are the same file,
// whatever they are called.
//
// A session proceeds in three steps.
// LIST fetches the server's inventory.
// DIFF compares it with an inventory of the client's local root
// (see Diff),
// producing the server records whose digests the client lacks.
// PULL asks the server for exactly those records,
// and the server answers with one frame per file,
// in request order.
// LEAVE ends the session.
//
// The wire format is described in the wire subpackage.
// The client state machine is in the client subpackage,
// and the per-connection command dispatcher is in the server subpackage.
package pullsync
