package store

const schema = `
CREATE TABLE IF NOT EXISTS tracked_apps (
    package_name TEXT PRIMARY KEY,
    repo_id INTEGER NOT NULL DEFAULT 0,
    repo_owner TEXT NOT NULL DEFAULT '',
    repo_name TEXT NOT NULL DEFAULT '',
    repo_owner_avatar_url TEXT NOT NULL DEFAULT '',
    repo_description TEXT NOT NULL DEFAULT '',
    primary_language TEXT NOT NULL DEFAULT '',
    repo_url TEXT NOT NULL DEFAULT '',
    app_name TEXT NOT NULL DEFAULT '',
    install_source TEXT NOT NULL DEFAULT 'session',
    system_architecture TEXT NOT NULL DEFAULT '',
    file_extension TEXT NOT NULL DEFAULT '',
    installed_version TEXT NOT NULL DEFAULT '',
    installed_asset_name TEXT NOT NULL DEFAULT '',
    installed_asset_url TEXT NOT NULL DEFAULT '',
    installed_version_name TEXT NOT NULL DEFAULT '',
    installed_version_code INTEGER NOT NULL DEFAULT 0,
    latest_version TEXT NOT NULL DEFAULT '',
    latest_version_name TEXT NOT NULL DEFAULT '',
    latest_version_code INTEGER NOT NULL DEFAULT 0,
    latest_asset_name TEXT NOT NULL DEFAULT '',
    latest_asset_url TEXT NOT NULL DEFAULT '',
    latest_asset_size INTEGER NOT NULL DEFAULT 0,
    release_notes TEXT NOT NULL DEFAULT '',
    is_update_available BOOLEAN NOT NULL DEFAULT 0,
    is_pending_install BOOLEAN NOT NULL DEFAULT 0,
    update_check_enabled BOOLEAN NOT NULL DEFAULT 1,
    auto_update_enabled BOOLEAN NOT NULL DEFAULT 0,
    installed_at INTEGER NOT NULL DEFAULT 0,
    last_checked_at INTEGER NOT NULL DEFAULT 0,
    last_updated_at INTEGER NOT NULL DEFAULT 0,
    last_auto_update_attempt INTEGER NOT NULL DEFAULT 0,
    auto_update_fail_count INTEGER NOT NULL DEFAULT 0,
    auto_update_fail_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    cached_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracked_update_available ON tracked_apps(is_update_available);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`
