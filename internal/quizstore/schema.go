package quizstore

const schema = `
-- One row per normalized user, holding both per-user JSON documents spec.md
-- §3 describes: the quiz set and the analyzed-match set.
CREATE TABLE IF NOT EXISTS user_documents (
    user_name         TEXT PRIMARY KEY,
    quizzes_json      TEXT NOT NULL,
    analyzed_json     TEXT NOT NULL,
    updated_at        DATETIME NOT NULL
);

-- History of completed crawl jobs, new relative to spec.md: lets a player
-- see "last crawled: 2h ago, 14 matches, 3 new quizzes" without re-running
-- a crawl.
CREATE TABLE IF NOT EXISTS crawl_runs (
    id                TEXT PRIMARY KEY,
    user_name         TEXT NOT NULL,
    started_at        DATETIME NOT NULL,
    finished_at       DATETIME,
    matches_total     INTEGER NOT NULL DEFAULT 0,
    matches_processed INTEGER NOT NULL DEFAULT 0,
    quizzes_added     INTEGER NOT NULL DEFAULT 0,
    error_text        TEXT,

    FOREIGN KEY(user_name) REFERENCES user_documents(user_name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_user_started
    ON crawl_runs(user_name, started_at DESC);
`
