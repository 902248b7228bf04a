/*
Package persistence provides the durable store of resumption records.

A store holds one record per (policy app id, device id) plus a single global
last ignition-off timestamp kept outside any record. Save replaces the whole
record set, so removals propagate on the next flush.

Backends:
  - FileStore: one versioned JSON document, optionally gzip compressed,
    written atomically through a temporary file
  - SQLiteStore: one row per record and a key/value table for global state
  - MemoryStore: process-local, for tests and ephemeral deployments

Open selects a backend from configuration.
*/
package persistence
