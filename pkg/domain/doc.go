// Package domain defines the governance record types, closed enums, and
// error taxonomy shared by the ledger, the instruction surface, and the
// HTTP API. Records are addressed by deterministic composite keys so that
// uniqueness (one DAO per name, one vote per voter per proposal) is a
// property of the key space rather than of caller discipline.
package domain
