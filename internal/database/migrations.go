package database

type Migration struct {
	Name     string
	Commands map[Dialect][]string
}

var migrations = []Migration{
	{
		Name: "01_create_videos",
		Commands: map[Dialect][]string{
			SQLite: {
				`CREATE TABLE IF NOT EXISTS videos (
					id TEXT PRIMARY KEY,
					asset_id TEXT NOT NULL UNIQUE,
					title TEXT NOT NULL,
					description TEXT NOT NULL,
					thumbnail_url TEXT NOT NULL,
					video_url TEXT NOT NULL,
					visibility TEXT NOT NULL DEFAULT 'public' CHECK (visibility IN ('public', 'private')),
					duration_seconds INTEGER,
					owner_id TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_videos_owner_id ON videos(owner_id)`,
			},
			Postgres: {
				`CREATE TABLE IF NOT EXISTS videos (
					id TEXT PRIMARY KEY,
					asset_id TEXT NOT NULL UNIQUE,
					title TEXT NOT NULL,
					description TEXT NOT NULL,
					thumbnail_url TEXT NOT NULL,
					video_url TEXT NOT NULL,
					visibility TEXT NOT NULL DEFAULT 'public' CHECK (visibility IN ('public', 'private')),
					duration_seconds INTEGER CHECK (duration_seconds >= 0),
					owner_id TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_videos_owner_id ON videos(owner_id)`,
			},
			MySQL: {
				`CREATE TABLE IF NOT EXISTS videos (
					id VARCHAR(36) PRIMARY KEY,
					asset_id VARCHAR(64) NOT NULL UNIQUE,
					title VARCHAR(255) NOT NULL,
					description TEXT NOT NULL,
					thumbnail_url TEXT NOT NULL,
					video_url TEXT NOT NULL,
					visibility ENUM('public', 'private') NOT NULL DEFAULT 'public',
					duration_seconds INT UNSIGNED NULL,
					owner_id VARCHAR(255) NOT NULL,
					created_at DATETIME(6) NOT NULL,
					updated_at DATETIME(6) NOT NULL,
					INDEX idx_videos_owner_id (owner_id)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
	},
	{
		Name: "02_create_rate_limit_windows",
		Commands: map[Dialect][]string{
			SQLite: {
				`CREATE TABLE IF NOT EXISTS rate_limit_windows (
					bucket_key TEXT PRIMARY KEY,
					hits INTEGER NOT NULL,
					expires_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_expires_at ON rate_limit_windows(expires_at)`,
			},
			Postgres: {
				`CREATE TABLE IF NOT EXISTS rate_limit_windows (
					bucket_key TEXT PRIMARY KEY,
					hits BIGINT NOT NULL,
					expires_at BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_expires_at ON rate_limit_windows(expires_at)`,
			},
			MySQL: {
				`CREATE TABLE IF NOT EXISTS rate_limit_windows (
					bucket_key VARCHAR(320) PRIMARY KEY,
					hits BIGINT NOT NULL,
					expires_at BIGINT NOT NULL,
					INDEX idx_rate_limit_windows_expires_at (expires_at)
				) ENGINE=InnoDB`,
			},
		},
	},
}
