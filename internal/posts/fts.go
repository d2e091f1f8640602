package posts

// FTSStatements returns the DDL installing the full-text index over posts and
// the triggers that keep it in sync with writes. The statements are idempotent
// so the database layer can replay them through its migration machinery.
func FTSStatements() []string {
	return []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
			title,
			content,
			content='posts',
			content_rowid='rowid'
		);`,
		`CREATE TRIGGER IF NOT EXISTS posts_fts_after_insert AFTER INSERT ON posts BEGIN
			INSERT INTO posts_fts(rowid, title, content)
			VALUES (new.rowid, new.title, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS posts_fts_after_delete AFTER DELETE ON posts BEGIN
			INSERT INTO posts_fts(posts_fts, rowid, title, content)
			VALUES ('delete', old.rowid, old.title, old.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS posts_fts_after_update AFTER UPDATE ON posts BEGIN
			INSERT INTO posts_fts(posts_fts, rowid, title, content)
			VALUES ('delete', old.rowid, old.title, old.content);
			INSERT INTO posts_fts(rowid, title, content)
			VALUES (new.rowid, new.title, new.content);
		END;`,
	}
}
