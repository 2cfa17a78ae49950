package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACTIVITY READ SCHEMA
// Owned by the task application. Created here only when missing so a local
// database can run the engine end to end.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS priorities (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(50) NOT NULL UNIQUE
);

INSERT INTO priorities (name) VALUES ('Baja'), ('Media'), ('Alta')
ON CONFLICT (name) DO NOTHING;

CREATE TABLE IF NOT EXISTS categories (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
    name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL DEFAULT '',
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    due_date TIMESTAMP WITH TIME ZONE,
    priority_id BIGINT REFERENCES priorities(id),
    category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_user_completed_updated ON tasks(user_id, updated_at) WHERE completed;

CREATE TABLE IF NOT EXISTS subtasks (
    id BIGSERIAL PRIMARY KEY,
    task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    title TEXT NOT NULL DEFAULT '',
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id);
`

const migration001Down = `
DROP TABLE IF EXISTS subtasks;
DROP TABLE IF EXISTS tasks;
DROP TABLE IF EXISTS categories;
DROP TABLE IF EXISTS priorities;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACHIEVEMENT PROGRESS
// progress and is_completed only ever grow; unlocked_at is written once.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id TEXT NOT NULL,
    achievement_id VARCHAR(64) NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id),
    CONSTRAINT valid_progress CHECK (progress >= 0),
    CONSTRAINT unlocked_when_completed CHECK (NOT is_completed OR unlocked_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_completed
    ON user_achievements(user_id) WHERE is_completed;
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: STREAKS
// version is the compare-and-set token for concurrent daily checks.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS user_streaks (
    user_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    last_streak_date DATE,
    daily_goal INTEGER NOT NULL DEFAULT 5,
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND best_streak >= current_streak),
    CONSTRAINT valid_daily_goal CHECK (daily_goal >= 1)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_streaks;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_activity_read_schema", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_user_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_user_streaks", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}
