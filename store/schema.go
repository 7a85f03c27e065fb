package store

// schemaSQL returns the DDL for all knowledge tables. Everything is
// idempotent so New can run it on every open. The graph FTS mirror is not
// part of this block: it is created separately so an SQLite build without
// FTS5 still opens cleanly.
func schemaSQL() string {
	return `
-- Documents and their flat string tags.
CREATE TABLE IF NOT EXISTS kb_documents (
    id              TEXT PRIMARY KEY,
    owner_agent_id  TEXT NOT NULL,
    kb_id           TEXT,
    filename        TEXT NOT NULL,
    description     TEXT,
    mimetype        TEXT NOT NULL,
    size_bytes      INTEGER NOT NULL,
    hash            TEXT NOT NULL,
    path            TEXT NOT NULL,
    source_metadata TEXT,
    uploaded_at     INTEGER NOT NULL,
    indexed_at      INTEGER,
    UNIQUE(hash, owner_agent_id)
);

CREATE TABLE IF NOT EXISTS kb_tags (
    document_id TEXT NOT NULL,
    tag         TEXT NOT NULL,
    PRIMARY KEY (document_id, tag),
    FOREIGN KEY (document_id) REFERENCES kb_documents(id) ON DELETE CASCADE
);

-- Per-agent settings overrides, one row per agent.
CREATE TABLE IF NOT EXISTS kb_settings (
    owner_agent_id TEXT PRIMARY KEY,
    vector_config  TEXT,
    graph_config   TEXT,
    updated_at     INTEGER NOT NULL
);

-- Knowledge bases and their registry.
CREATE TABLE IF NOT EXISTS kb_bases (
    id             TEXT PRIMARY KEY,
    owner_agent_id TEXT NOT NULL,
    name           TEXT NOT NULL,
    description    TEXT,
    icon           TEXT,
    visibility     TEXT NOT NULL DEFAULT 'private',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    UNIQUE(owner_agent_id, name)
);

CREATE TABLE IF NOT EXISTS kb_base_settings (
    kb_id                TEXT PRIMARY KEY,
    chunk_config         TEXT,
    retrieval_config     TEXT,
    index_config         TEXT,
    graph_config         TEXT,
    vectorization_config TEXT,
    updated_at           INTEGER NOT NULL,
    FOREIGN KEY (kb_id) REFERENCES kb_bases(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS kb_tag_defs (
    id             TEXT PRIMARY KEY,
    owner_agent_id TEXT NOT NULL,
    name           TEXT NOT NULL,
    color          TEXT,
    created_at     INTEGER NOT NULL,
    UNIQUE(owner_agent_id, name)
);

CREATE TABLE IF NOT EXISTS kb_base_tags (
    kb_id  TEXT NOT NULL,
    tag_id TEXT NOT NULL,
    PRIMARY KEY (kb_id, tag_id),
    FOREIGN KEY (kb_id)  REFERENCES kb_bases(id)    ON DELETE CASCADE,
    FOREIGN KEY (tag_id) REFERENCES kb_tag_defs(id) ON DELETE CASCADE
);

-- Graph extraction runs and the extracted triples.
CREATE TABLE IF NOT EXISTS knowledge_graph_runs (
    id           TEXT PRIMARY KEY,
    kb_id        TEXT NOT NULL,
    document_id  TEXT NOT NULL,
    status       TEXT NOT NULL,
    triples_path TEXT,
    extractor    TEXT NOT NULL,
    model        TEXT,
    triple_count INTEGER NOT NULL DEFAULT 0,
    error        TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_graph_triples (
    id          TEXT PRIMARY KEY,
    kb_id       TEXT NOT NULL,
    document_id TEXT NOT NULL,
    h           TEXT NOT NULL,
    r           TEXT NOT NULL,
    t           TEXT NOT NULL,
    props_json  TEXT,
    created_at  INTEGER NOT NULL
);

-- Memory-index chunks. Knowledge documents land here with
-- path = 'knowledge/<documentID>' and source = 'knowledge'.
CREATE TABLE IF NOT EXISTS chunks (
    id         TEXT PRIMARY KEY,
    path       TEXT NOT NULL,
    source     TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL,
    text       TEXT NOT NULL,
    model      TEXT,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_kb_documents_owner    ON kb_documents(owner_agent_id);
CREATE INDEX IF NOT EXISTS idx_kb_documents_kb       ON kb_documents(kb_id);
CREATE INDEX IF NOT EXISTS idx_kb_documents_hash     ON kb_documents(hash);
CREATE INDEX IF NOT EXISTS idx_kb_tags_tag           ON kb_tags(tag);
CREATE INDEX IF NOT EXISTS idx_kb_bases_owner        ON kb_bases(owner_agent_id);
CREATE INDEX IF NOT EXISTS idx_kb_tag_defs_owner     ON kb_tag_defs(owner_agent_id);
CREATE INDEX IF NOT EXISTS idx_graph_runs_doc        ON knowledge_graph_runs(kb_id, document_id);
CREATE INDEX IF NOT EXISTS idx_graph_triples_doc     ON knowledge_graph_triples(kb_id, document_id);
CREATE INDEX IF NOT EXISTS idx_graph_triples_h       ON knowledge_graph_triples(kb_id, h);
CREATE INDEX IF NOT EXISTS idx_graph_triples_t       ON knowledge_graph_triples(kb_id, t);
CREATE INDEX IF NOT EXISTS idx_chunks_path           ON chunks(path, source);
`
}

// graphFTSSQL is the contentless FTS5 mirror of the triples table. Only the
// joined text column is indexed; the rest ride along for filtered lookups.
const graphFTSSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_graph_fts USING fts5(
    content,
    triple_id   UNINDEXED,
    kb_id       UNINDEXED,
    document_id UNINDEXED,
    h           UNINDEXED,
    r           UNINDEXED,
    t           UNINDEXED
)`
