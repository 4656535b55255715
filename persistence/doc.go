// Package persistence implements durable state: session snapshots,
// checkpoints, and conversation
// exports. None of this is in the hot path of a turn — the UX engine and
// transactional executor hold their working state in memory (ux.Engine,
// executor.CheckpointManager) and only call out to a Store when a caller
// wants a session to survive process restart (session.restored) or wants
// a conversation handed to another tool.
//
// Three Store implementations share one interface so the backend is a
// deployment choice, not a code change: FileStore (default, one JSON
// document per session/checkpoint, matching the wire layout
// verbatim), SQLStore (GORM over Postgres/MySQL/SQLite, for deployments
// that already run a relational database for other state), and
// MongoStore (document-native, for deployments standardized on Mongo).
package persistence
