package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE jobs (
				id VARCHAR(255) PRIMARY KEY,
				transaction_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				actor_id VARCHAR(255),
				tenant JSONB,
				type VARCHAR(50) NOT NULL,
				step JSONB NOT NULL,
				payload JSONB,
				overrides JSONB,
				digest JSONB,
				preferences JSONB,
				provider_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_jobs_transaction_id ON jobs(transaction_id);
			CREATE INDEX idx_jobs_environment_id ON jobs(environment_id);
			CREATE INDEX idx_jobs_status ON jobs(status);
			CREATE UNIQUE INDEX idx_jobs_transaction_step ON jobs(transaction_id, (step->>'id'));

			CREATE TABLE messages (
				id VARCHAR(255) PRIMARY KEY,
				job_id VARCHAR(255) NOT NULL,
				transaction_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				channel VARCHAR(50) NOT NULL,
				provider_id VARCHAR(255) NOT NULL,
				provider_message_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				subject TEXT,
				content TEXT,
				recipient TEXT,
				device_tokens JSONB,
				payload JSONB,
				overrides JSONB,
				error_id VARCHAR(255),
				error_text TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_messages_job_id ON messages(job_id);
			CREATE INDEX idx_messages_transaction_id ON messages(transaction_id);
			CREATE INDEX idx_messages_subscriber ON messages(environment_id, subscriber_id);

			CREATE TABLE execution_details (
				id VARCHAR(255) PRIMARY KEY,
				job_id VARCHAR(255) NOT NULL,
				message_id VARCHAR(255),
				transaction_id VARCHAR(255),
				environment_id VARCHAR(255),
				organization_id VARCHAR(255),
				workflow_id VARCHAR(255),
				subscriber_id VARCHAR(255),
				provider_id VARCHAR(255),
				channel VARCHAR(50),
				detail TEXT NOT NULL,
				source VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				raw TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_details_job_id ON execution_details(job_id);
			CREATE INDEX idx_execution_details_created_at ON execution_details(created_at);
		`,
		2: `
			CREATE TABLE subscribers (
				id VARCHAR(255) PRIMARY KEY,
				subscriber_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				first_name VARCHAR(255),
				last_name VARCHAR(255),
				email VARCHAR(255),
				phone VARCHAR(50),
				locale VARCHAR(20),
				data JSONB,
				channels JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_subscribers_env_subscriber ON subscribers(environment_id, subscriber_id);

			CREATE TABLE integrations (
				id VARCHAR(255) PRIMARY KEY,
				identifier VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255),
				provider_id VARCHAR(255) NOT NULL,
				channel VARCHAR(50) NOT NULL,
				credentials JSONB,
				active BOOLEAN NOT NULL DEFAULT FALSE,
				is_primary BOOLEAN NOT NULL DEFAULT FALSE,
				priority INT NOT NULL DEFAULT 0,
				conditions JSONB,
				activated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_integrations_env_channel ON integrations(environment_id, channel);
			CREATE UNIQUE INDEX idx_integrations_env_identifier ON integrations(environment_id, identifier);

			CREATE TABLE workflows (
				id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				critical BOOLEAN NOT NULL DEFAULT FALSE,
				steps JSONB NOT NULL DEFAULT '[]',
				preference_settings JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (environment_id, id)
			);

			CREATE TABLE tenants (
				id VARCHAR(255) PRIMARY KEY,
				identifier VARCHAR(255) NOT NULL,
				name VARCHAR(255),
				environment_id VARCHAR(255) NOT NULL,
				data JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_tenants_env_identifier ON tenants(environment_id, identifier);

			CREATE TABLE subscriber_preferences (
				id VARCHAR(255) PRIMARY KEY,
				environment_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				enabled BOOLEAN,
				channels JSONB NOT NULL DEFAULT '{}'
			);

			CREATE UNIQUE INDEX idx_subscriber_preferences_scope ON subscriber_preferences(environment_id, subscriber_id, workflow_id);

			CREATE TABLE environments (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255),
				organization_id VARCHAR(255),
				dns JSONB
			);
		`,
	}
}
