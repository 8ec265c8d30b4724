// Package entry implements the store entry bot.
//
// Store owners register a store with a two-digit code, an optional minimum
// role, an optional role granted on entry and an optional passphrase.
// Visitors run the entry command with the code; the [Verifier] checks guild
// membership and role rank, then either approves them or sends a
// passphrase challenge over DM that is answered by the visitor's next DM.
// Owners get a DM for every approval and most denials.
//
// Stores are kept by a [Registry] which writes the whole set through a
// [Backend] after every change: a JSON file by default, or a sqlite or
// postgres table.
package entry
