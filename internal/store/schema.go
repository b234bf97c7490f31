package store

// schema contains the SQL statements to create the symdex database schema.
const schema = `
-- Files table
CREATE TABLE IF NOT EXISTS files (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path     TEXT NOT NULL UNIQUE,
    relative_path TEXT,
    file_hash     TEXT NOT NULL,
    last_updated  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_files_last_updated ON files(last_updated);

-- Symbols table
CREATE TABLE IF NOT EXISTS symbols (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id        INTEGER NOT NULL,
    symbol_name    TEXT NOT NULL,
    symbol_type    TEXT NOT NULL CHECK (symbol_type IN
                   ('function', 'class', 'variable', 'module_doc', 'method', 'attribute', 'import')),
    lineno         INTEGER,
    end_lineno     INTEGER,
    doc_text       BLOB,
    signature_json TEXT,
    bases_json     TEXT,
    members_json   TEXT,
    annotation     TEXT,
    from_class     TEXT,
    is_member      INTEGER NOT NULL DEFAULT 0,
    is_import      INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE,
    UNIQUE (file_id, symbol_name)
);

CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(symbol_name);
CREATE INDEX IF NOT EXISTS idx_symbols_type ON symbols(symbol_type);
CREATE INDEX IF NOT EXISTS idx_symbols_lineno ON symbols(lineno);
CREATE INDEX IF NOT EXISTS idx_symbols_from_class ON symbols(from_class);

-- Metadata table for index info
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT
);
`
