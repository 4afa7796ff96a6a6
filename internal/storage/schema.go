package storage

const schema = `
-- The 'snapshots' table holds one serialized review snapshot per key.
CREATE TABLE IF NOT EXISTS snapshots (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);
`
