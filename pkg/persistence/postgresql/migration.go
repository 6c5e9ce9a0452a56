package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE communication_templates (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				channel VARCHAR(20) NOT NULL CHECK (channel IN ('EMAIL', 'SMS', 'WHATSAPP', 'PUSH')),
				subject VARCHAR(998),
				body TEXT NOT NULL,
				html_body TEXT,
				available_tokens JSONB,
				media_url VARCHAR(2048),
				media_type VARCHAR(50),
				category VARCHAR(100),
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_templates_channel ON communication_templates(channel);
			CREATE INDEX idx_templates_category ON communication_templates(category);

			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				status VARCHAR(20) NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'PAUSED', 'ARCHIVED')),
				trigger_type VARCHAR(30) NOT NULL,
				trigger_config JSONB,
				audience_filters JSONB,
				allow_re_entry BOOLEAN NOT NULL DEFAULT false,
				exit_on_conversion BOOLEAN NOT NULL DEFAULT true,
				continue_on_pause BOOLEAN NOT NULL DEFAULT false,
				total_enrolled INT NOT NULL DEFAULT 0,
				total_completed INT NOT NULL DEFAULT 0,
				total_converted INT NOT NULL DEFAULT 0,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_steps (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				order_index INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				step_type VARCHAR(20) NOT NULL CHECK (step_type IN ('SEND_MESSAGE', 'WAIT', 'CONDITION', 'UPDATE_FIELD', 'ASSIGN')),
				payload JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);
			CREATE INDEX idx_workflow_steps_order ON workflow_steps(workflow_id, order_index);

			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				lead_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'COMPLETED', 'FAILED', 'CANCELLED')),
				current_step_id VARCHAR(255),
				next_action_at TIMESTAMP WITH TIME ZONE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				execution_log JSONB NOT NULL DEFAULT '[]',
				retry_count INT NOT NULL DEFAULT 0,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_executions_lead_id ON workflow_executions(lead_id);
			CREATE INDEX idx_executions_status ON workflow_executions(status);
			CREATE INDEX idx_executions_due ON workflow_executions(next_action_at) WHERE status IN ('PENDING', 'RUNNING');

			CREATE TABLE message_logs (
				id UUID PRIMARY KEY,
				lead_id VARCHAR(255),
				workflow_execution_id UUID,
				template_id UUID,
				channel VARCHAR(20) NOT NULL,
				recipient VARCHAR(512) NOT NULL,
				subject VARCHAR(998),
				body TEXT,
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'SENT', 'DELIVERED', 'FAILED', 'BOUNCED')),
				sent_at TIMESTAMP WITH TIME ZONE,
				delivered_at TIMESTAMP WITH TIME ZONE,
				opened_at TIMESTAMP WITH TIME ZONE,
				clicked_at TIMESTAMP WITH TIME ZONE,
				replied_at TIMESTAMP WITH TIME ZONE,
				provider_message_id VARCHAR(255),
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_message_logs_lead_id ON message_logs(lead_id);
			CREATE INDEX idx_message_logs_execution_id ON message_logs(workflow_execution_id);
			CREATE UNIQUE INDEX idx_message_logs_provider_id ON message_logs(provider_message_id) WHERE provider_message_id IS NOT NULL;
		`,
	}
}
