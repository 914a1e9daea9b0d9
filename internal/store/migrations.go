package store

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    account_id INTEGER NOT NULL,
    prospect_id INTEGER REFERENCES prospects(id),
    priority INTEGER NOT NULL DEFAULT 100,
    dedup_key TEXT,
    payload TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    scheduled_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    result TEXT,
    error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_tasks_dedup ON tasks(dedup_key);

CREATE TABLE IF NOT EXISTS action_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    prospect_id INTEGER REFERENCES prospects(id),
    action TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'system',
    priority INTEGER NOT NULL DEFAULT 100,
    requires_validation BOOLEAN NOT NULL DEFAULT FALSE,
    validation_status TEXT NOT NULL DEFAULT 'auto_execute',
    payload TEXT,
    scheduled_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    error TEXT,
    rejection_category TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    executed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_actions_due ON action_logs(status, validation_status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_actions_prospect ON action_logs(prospect_id);
CREATE INDEX IF NOT EXISTS idx_actions_executed ON action_logs(account_id, action, executed_at);

CREATE TABLE IF NOT EXISTS prospects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    identifier TEXT NOT NULL,
    attendee_id TEXT,
    first_name TEXT,
    last_name TEXT,
    headline TEXT,
    job_title TEXT,
    company TEXT,
    avatar_url TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    avatar_match BOOLEAN,
    avatar_reason TEXT,
    rejection_count INTEGER NOT NULL DEFAULT 0,
    closed_reason TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(account_id, identifier)
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(status);
CREATE INDEX IF NOT EXISTS idx_prospects_attendee ON prospects(attendee_id);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prospect_id INTEGER NOT NULL REFERENCES prospects(id),
    account_id INTEGER NOT NULL,
    sent_by TEXT NOT NULL,
    content TEXT,
    kind TEXT,
    external_id TEXT UNIQUE,
    sent_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_prospect ON messages(prospect_id, sent_at);

CREATE TABLE IF NOT EXISTS daily_metrics (
    day TEXT NOT NULL,
    account_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (day, account_id, action)
);
`
