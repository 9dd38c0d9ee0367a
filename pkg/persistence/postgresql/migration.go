package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE users (
				id TEXT PRIMARY KEY,
				email VARCHAR(320) NOT NULL,
				name VARCHAR(255) NOT NULL,
				roles TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_users_email ON users(lower(email));

			CREATE TABLE teams (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				name_key VARCHAR(255) NOT NULL,
				member_ids TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_teams_name_key ON teams(name_key) WHERE deleted_at IS NULL;
			CREATE INDEX idx_teams_member_ids ON teams USING GIN (member_ids);

			CREATE TABLE steps (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				name_key VARCHAR(255) NOT NULL,
				user_ids TEXT[] NOT NULL DEFAULT '{}',
				team_ids TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE,
				CONSTRAINT steps_deleted_empty CHECK (
					deleted_at IS NULL OR (cardinality(user_ids) = 0 AND cardinality(team_ids) = 0)
				)
			);

			CREATE UNIQUE INDEX idx_steps_name_key ON steps(name_key) WHERE deleted_at IS NULL;

			CREATE TABLE form_templates (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				fields JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE flows (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				name_key VARCHAR(255) NOT NULL,
				form_template_id TEXT NOT NULL REFERENCES form_templates(id),
				steps JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_flows_name_key ON flows(name_key) WHERE deleted_at IS NULL;
		`,
		2: `
			CREATE TABLE form_responses (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL REFERENCES flows(id),
				form_template_id TEXT NOT NULL,
				current_step_id TEXT NOT NULL,
				submitted_by TEXT NOT NULL,
				completed_by TEXT,
				answers JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				reject_reason TEXT,
				step_entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_form_responses_submitted_by ON form_responses(submitted_by);
			CREATE INDEX idx_form_responses_position ON form_responses(flow_id, current_step_id);
			CREATE INDEX idx_form_responses_step_entered_at ON form_responses(step_entered_at) WHERE status = 'pending';

			CREATE TABLE form_reviews (
				id TEXT PRIMARY KEY,
				form_response_id TEXT NOT NULL REFERENCES form_responses(id),
				reviewer_id TEXT NOT NULL,
				step_id TEXT NOT NULL,
				action VARCHAR(20) NOT NULL CHECK (action IN ('approved', 'rejected')),
				reject_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_form_reviews_response ON form_reviews(form_response_id, created_at DESC, id DESC);
			CREATE INDEX idx_form_reviews_reviewer ON form_reviews(reviewer_id, created_at DESC, id DESC);

			CREATE TABLE step_histories (
				id TEXT PRIMARY KEY,
				step_id TEXT NOT NULL REFERENCES steps(id),
				actor_id TEXT NOT NULL,
				action VARCHAR(20) NOT NULL CHECK (action IN ('create', 'name_change', 'delete', 'move_users')),
				details JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_step_histories_step ON step_histories(step_id, created_at DESC, id DESC);
			CREATE INDEX idx_step_histories_actor ON step_histories(actor_id, created_at DESC, id DESC);
		`,
	}
}
