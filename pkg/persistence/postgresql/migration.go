package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow templates, scoped to a tenant or the shared global set.
			-- scope stores 'global' or a tenant id; name is unique per scope
			-- among live rows.
			CREATE TABLE templates (
				id UUID PRIMARY KEY,
				scope VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				icon VARCHAR(100) NOT NULL DEFAULT '',
				color VARCHAR(50) NOT NULL DEFAULT '',
				kind VARCHAR(100) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'pending_review', 'approved', 'changes_required')),
				review_note TEXT NOT NULL DEFAULT '',
				approved_by VARCHAR(255) NOT NULL DEFAULT '',
				approved_at TIMESTAMP WITH TIME ZONE,
				source_template_id UUID,
				version BIGINT NOT NULL DEFAULT 1,
				updated_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_templates_scope ON templates(scope);
			CREATE INDEX idx_templates_status ON templates(status);
			CREATE INDEX idx_templates_deleted_at ON templates(deleted_at);
			CREATE UNIQUE INDEX idx_templates_scope_name ON templates(scope, name) WHERE deleted_at IS NULL;

			CREATE TABLE template_nodes (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				node_type VARCHAR(50) NOT NULL CHECK (node_type IN ('instruction', 'question', 'end', 'panel', 'reference')),
				title VARCHAR(500) NOT NULL,
				body TEXT NOT NULL DEFAULT '',
				sort_order INT NOT NULL DEFAULT 0,
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				entry BOOLEAN NOT NULL DEFAULT false,
				style JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_template_nodes_template_id ON template_nodes(template_id);
			CREATE INDEX idx_template_nodes_sort_order ON template_nodes(template_id, sort_order);

			-- target_node_id is intentionally nullable: deleting a node
			-- dangles inbound options instead of deleting them.
			CREATE TABLE answer_options (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				source_node_id UUID NOT NULL REFERENCES template_nodes(id) ON DELETE CASCADE,
				label VARCHAR(500) NOT NULL,
				target_node_id UUID REFERENCES template_nodes(id),
				action_key VARCHAR(100) NOT NULL DEFAULT '',
				source_handle VARCHAR(50) NOT NULL DEFAULT '',
				target_handle VARCHAR(50) NOT NULL DEFAULT '',
				sort_order INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_answer_options_template_id ON answer_options(template_id);
			CREATE INDEX idx_answer_options_source ON answer_options(source_node_id);
			CREATE INDEX idx_answer_options_target ON answer_options(target_node_id);

			CREATE TABLE node_links (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				source_node_id UUID NOT NULL REFERENCES template_nodes(id) ON DELETE CASCADE,
				target_template_id UUID NOT NULL REFERENCES templates(id),
				sort_order INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_node_links_template_id ON node_links(template_id);
			CREATE INDEX idx_node_links_source ON node_links(source_node_id);
			CREATE INDEX idx_node_links_target_template ON node_links(target_template_id);

			CREATE TABLE node_styles (
				template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				node_type VARCHAR(50) NOT NULL,
				background VARCHAR(50) NOT NULL DEFAULT '',
				text_color VARCHAR(50) NOT NULL DEFAULT '',
				border VARCHAR(50) NOT NULL DEFAULT '',
				PRIMARY KEY (template_id, node_type)
			);
		`,
		2: `
			-- Instance runs and their append-only history.
			CREATE TABLE instances (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id),
				tenant_id VARCHAR(255) NOT NULL,
				reference VARCHAR(500) NOT NULL DEFAULT '',
				category VARCHAR(255) NOT NULL DEFAULT '',
				current_node_id UUID NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('in_progress', 'completed', 'abandoned')),
				version BIGINT NOT NULL DEFAULT 1,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_instances_tenant_id ON instances(tenant_id);
			CREATE INDEX idx_instances_template_id ON instances(template_id);
			CREATE INDEX idx_instances_status ON instances(status);
			CREATE INDEX idx_instances_created_at ON instances(created_at);

			CREATE TABLE instance_history (
				instance_id UUID NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				seq INT NOT NULL,
				from_node_id UUID NOT NULL,
				choice_kind VARCHAR(20) NOT NULL CHECK (choice_kind IN ('option', 'link', 'continue')),
				choice_id VARCHAR(255) NOT NULL,
				to_node_id UUID NOT NULL,
				to_template_id UUID,
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (instance_id, seq)
			);
		`,
	}
}
