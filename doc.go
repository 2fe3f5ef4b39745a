// Package sgfa is the core of a content-addressed, append-only filing
// engine.
//
// The engine stores versioned records - "entries" - with arbitrary file
// attachments, grouped into containers called "jackets."
// Every accepted change to a jacket is recorded in a history record,
// and each history record carries the SHA2-256 hash of its predecessor,
// so the whole change-log forms a tamper-evident chain.
//
// Each persistent object - a history record, an entry revision, or an
// attachment - is an "item": an opaque byte blob addressed by a SHA2-256
// id derived from the jacket's identity and the item's coordinates.
// Items live in a Store (see the store subpackage), which may be a local
// file hierarchy, an object-store bucket, or a SQL database.
//
// This package holds the data model: refs, item identity, the entry and
// history records with their canonical byte encodings, the field limits,
// and the error taxonomy. The jacket subpackage holds the machinery that
// writes, reads, validates, and backs up a jacket.
package sgfa
