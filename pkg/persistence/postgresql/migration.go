package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				workflow_name VARCHAR(255) NOT NULL,
				concurrency_key VARCHAR(512) NOT NULL,
				status VARCHAR(50) NOT NULL,
				context JSONB NOT NULL,
				jobs JSONB NOT NULL DEFAULT '{}',
				gate_passed BOOLEAN,
				gate_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_concurrency_key ON runs(concurrency_key);
			CREATE INDEX idx_runs_created_at ON runs(created_at);

			CREATE TABLE workflows (
				name VARCHAR(255) PRIMARY KEY,
				id VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				jobs JSONB NOT NULL,
				gate_inputs JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
