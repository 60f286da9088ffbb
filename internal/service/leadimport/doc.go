// Package leadimport turns decoded upload files into committed leads.
//
// The pipeline is: datanorm (read, map, normalize) → Resolve (fingerprint
// against the lead store) → Importer (per-record commit). Service ties these
// together behind an import session whose state lives in Redis, so any API
// instance can serve any step of the wizard.
//
// Resolve is pure. All lead store access goes through the LeadStore
// interface defined here; implementations live in repository/postgres/ and
// repository/memory/.
package leadimport
