package sqlite

import "fmt"

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            name TEXT NOT NULL,
            color TEXT NOT NULL DEFAULT '#2563eb',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(workspace_id, name)
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            project_id INTEGER NOT NULL,
            workflow_id INTEGER NOT NULL,
            issue_type TEXT NOT NULL DEFAULT 'task',
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            priority TEXT NOT NULL DEFAULT 'medium',
            assignee TEXT NOT NULL DEFAULT '',
            resolution TEXT NOT NULL DEFAULT '',
            position INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
            FOREIGN KEY(workflow_id) REFERENCES workflows(id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workflow_status ON tasks(workflow_id, status);`,
		`CREATE TRIGGER IF NOT EXISTS trg_projects_updated
            AFTER UPDATE ON projects
            FOR EACH ROW BEGIN
                UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_tasks_updated
            AFTER UPDATE ON tasks
            FOR EACH ROW BEGIN
                UPDATE tasks SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,

		`CREATE TABLE IF NOT EXISTS field_definitions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            field_key TEXT NOT NULL,
            name TEXT NOT NULL,
            field_type TEXT NOT NULL,
            is_required INTEGER NOT NULL DEFAULT 0,
            default_value TEXT NOT NULL DEFAULT '',
            options TEXT NOT NULL DEFAULT '{}',
            issue_types TEXT NOT NULL DEFAULT '[]',
            project_ids TEXT NOT NULL DEFAULT '[]',
            visible_in_list INTEGER NOT NULL DEFAULT 0,
            visible_in_detail INTEGER NOT NULL DEFAULT 1,
            searchable INTEGER NOT NULL DEFAULT 0,
            filterable INTEGER NOT NULL DEFAULT 0,
            display_order INTEGER NOT NULL DEFAULT 0,
            is_system INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(workspace_id, field_key)
        );`,
		// Exactly one slot is populated per row. Definitions cannot be deleted
		// while values reference them.
		`CREATE TABLE IF NOT EXISTS field_values (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            field_definition_id INTEGER NOT NULL,
            string_value TEXT,
            number_value REAL,
            date_value DATETIME,
            user_value TEXT,
            json_value TEXT,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(task_id, field_definition_id),
            CHECK ((string_value IS NOT NULL) + (number_value IS NOT NULL) + (date_value IS NOT NULL)
                + (user_value IS NOT NULL) + (json_value IS NOT NULL) = 1),
            FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE,
            FOREIGN KEY(field_definition_id) REFERENCES field_definitions(id) ON DELETE RESTRICT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_field_values_definition ON field_values(field_definition_id);`,

		`CREATE TABLE IF NOT EXISTS workflows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            is_default INTEGER NOT NULL DEFAULT 0,
            statuses TEXT NOT NULL,
            transitions TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(workspace_id, name)
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workflows_one_default ON workflows(workspace_id) WHERE is_default = 1;`,

		`CREATE TABLE IF NOT EXISTS boards (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            project_id INTEGER,
            workflow_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            card_color_by TEXT NOT NULL DEFAULT '',
            swimlanes_by TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
            FOREIGN KEY(workflow_id) REFERENCES workflows(id)
        );`,
		`CREATE TABLE IF NOT EXISTS board_columns (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            board_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            status_mapping TEXT NOT NULL DEFAULT '[]',
            wip_limit INTEGER,
            sort_order INTEGER NOT NULL DEFAULT 0,
            FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_board_columns_board ON board_columns(board_id, sort_order);`,

		`CREATE TABLE IF NOT EXISTS sprints (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            board_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            goal TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL DEFAULT 'future' CHECK (state IN ('future', 'active', 'closed')),
            start_date DATETIME,
            end_date DATETIME,
            started_at DATETIME,
            completed_at DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sprints_one_active ON sprints(board_id) WHERE state = 'active';`,
		`CREATE TABLE IF NOT EXISTS sprint_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sprint_id INTEGER NOT NULL,
            task_id INTEGER NOT NULL,
            added_at DATETIME NOT NULL,
            removed_at DATETIME,
            FOREIGN KEY(sprint_id) REFERENCES sprints(id) ON DELETE CASCADE,
            FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sprint_tasks_current ON sprint_tasks(sprint_id, task_id) WHERE removed_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_sprint_tasks_task ON sprint_tasks(task_id);`,

		`CREATE TABLE IF NOT EXISTS bugs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Open' CHECK (status IN ('Open', 'In Progress', 'Resolved', 'Closed')),
            assigned_to TEXT NOT NULL,
            reported_by TEXT NOT NULL,
            file_url TEXT NOT NULL DEFAULT '',
            output_file_url TEXT NOT NULL DEFAULT '',
            resolved_at DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((status IN ('Resolved', 'Closed')) = (resolved_at IS NOT NULL))
        );`,
		`CREATE TRIGGER IF NOT EXISTS trg_bugs_updated
            AFTER UPDATE ON bugs
            FOR EACH ROW BEGIN
                UPDATE bugs SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
		`CREATE TABLE IF NOT EXISTS bug_comments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            bug_id INTEGER NOT NULL,
            author_id TEXT NOT NULL,
            body TEXT NOT NULL,
            is_system INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            FOREIGN KEY(bug_id) REFERENCES bugs(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_bug_comments_bug ON bug_comments(bug_id, id);`,

		`CREATE TABLE IF NOT EXISTS activity_log (
            id TEXT PRIMARY KEY,
            action_type TEXT NOT NULL,
            entity_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            user_id TEXT NOT NULL DEFAULT '',
            summary TEXT NOT NULL DEFAULT '',
            change_field TEXT NOT NULL DEFAULT '',
            old_value TEXT NOT NULL DEFAULT '',
            new_value TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_log(entity_type, entity_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
