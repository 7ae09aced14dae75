package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				active BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive', 'error')),
				payload_schema JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				issues JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_tenant ON workflows(environment_id, organization_id);
			CREATE INDEX idx_workflows_workflow_id ON workflows(environment_id, workflow_id);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			CREATE TABLE control_values (
				id VARCHAR(255) PRIMARY KEY,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				level VARCHAR(50) NOT NULL,
				controls JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_control_values_key
				ON control_values(environment_id, organization_id, workflow_id, step_id, level);
			CREATE INDEX idx_control_values_workflow_id ON control_values(workflow_id);
		`,
	}
}
