package database

const schema = `
CREATE TABLE IF NOT EXISTS mail_servers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 993,
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    folders TEXT NOT NULL DEFAULT 'INBOX',
    pool TEXT NOT NULL DEFAULT 'main',
    is_active BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(host, username)
);

CREATE TABLE IF NOT EXISTS services (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    is_enabled BOOLEAN DEFAULT true,
    visibility TEXT NOT NULL DEFAULT 'private',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS filters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    keyword TEXT NOT NULL DEFAULT '',
    cut_after TEXT NOT NULL DEFAULT '',
    cut_before TEXT NOT NULL DEFAULT '',
    is_enabled BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS regexes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    pattern TEXT NOT NULL,
    is_enabled BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS security_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    pattern TEXT NOT NULL,
    is_enabled BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS service_filters (
    service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
    filter_id INTEGER NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
    PRIMARY KEY (service_id, filter_id)
);

CREATE TABLE IF NOT EXISTS service_regexes (
    service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
    regex_id INTEGER NOT NULL REFERENCES regexes(id) ON DELETE CASCADE,
    escalation_eligible BOOLEAN DEFAULT false,
    PRIMARY KEY (service_id, regex_id)
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    is_admin BOOLEAN DEFAULT false,
    parent_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
    is_active BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_filters (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    filter_id INTEGER NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
    PRIMARY KEY (user_id, filter_id)
);

CREATE TABLE IF NOT EXISTS user_regexes (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    regex_id INTEGER NOT NULL REFERENCES regexes(id) ON DELETE CASCADE,
    PRIMARY KEY (user_id, regex_id)
);

CREATE TABLE IF NOT EXISTS subuser_default_filters (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    filter_id INTEGER NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
    PRIMARY KEY (user_id, filter_id)
);

CREATE TABLE IF NOT EXISTS subuser_default_regexes (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    regex_id INTEGER NOT NULL REFERENCES regexes(id) ON DELETE CASCADE,
    PRIMARY KEY (user_id, regex_id)
);

CREATE TABLE IF NOT EXISTS trigger_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    rule_id INTEGER NOT NULL REFERENCES security_rules(id) ON DELETE CASCADE,
    email_key TEXT NOT NULL,
    searched_email TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_servers_pool ON mail_servers(pool, is_active);
CREATE INDEX IF NOT EXISTS idx_users_parent ON users(parent_id);
CREATE INDEX IF NOT EXISTS idx_trigger_log_user ON trigger_log(user_id);
CREATE INDEX IF NOT EXISTS idx_trigger_log_rule ON trigger_log(rule_id);
`
