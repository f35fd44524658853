package persistence

// Schema is the embedded migration applied once at Open if the tables are
// absent (spec.md §6 optimized_routes/e2e_metrics tables). Both tables are
// append-only: nothing in this package ever updates or deletes a row.
const schema = `
CREATE TABLE IF NOT EXISTS optimized_routes (
	id               BIGSERIAL PRIMARY KEY,
	source_node      SMALLINT NOT NULL,
	destination_node SMALLINT NOT NULL,
	best_route       TEXT NOT NULL,
	fitness          DOUBLE PRECISION NOT NULL,
	avg_rssi         DOUBLE PRECISION NOT NULL,
	avg_delay        DOUBLE PRECISION NOT NULL,
	avg_pdr          DOUBLE PRECISION NOT NULL,
	iterations       INTEGER NOT NULL,
	agent_id         TEXT NOT NULL,
	recorded_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS optimized_routes_dest_idx
	ON optimized_routes (destination_node, recorded_at DESC);

CREATE TABLE IF NOT EXISTS e2e_metrics (
	id               BIGSERIAL PRIMARY KEY,
	packet_id        INTEGER NOT NULL,
	source_node      SMALLINT NOT NULL,
	destination_node SMALLINT NOT NULL,
	route            TEXT NOT NULL,
	hops             INTEGER NOT NULL,
	delay_ms         DOUBLE PRECISION NOT NULL,
	rssi_min         DOUBLE PRECISION NOT NULL,
	rssi_avg         DOUBLE PRECISION NOT NULL,
	success          BOOLEAN NOT NULL,
	window_pdr       DOUBLE PRECISION NOT NULL,
	agent_id         TEXT NOT NULL,
	recorded_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS e2e_metrics_dest_idx
	ON e2e_metrics (destination_node, recorded_at DESC);
`

// optimizedRouteInsert and e2eMetricInsert are the named-parameter queries
// the writer goroutine runs; field names match the record structs'
// sqlx "db" tags one-to-one.
const optimizedRouteInsert = `
INSERT INTO optimized_routes
	(source_node, destination_node, best_route, fitness, avg_rssi, avg_delay, avg_pdr, iterations, agent_id, recorded_at)
VALUES
	(:source_node, :destination_node, :best_route, :fitness, :avg_rssi, :avg_delay, :avg_pdr, :iterations, :agent_id, :recorded_at)
`

const e2eMetricInsert = `
INSERT INTO e2e_metrics
	(packet_id, source_node, destination_node, route, hops, delay_ms, rssi_min, rssi_avg, success, window_pdr, agent_id, recorded_at)
VALUES
	(:packet_id, :source_node, :destination_node, :route, :hops, :delay_ms, :rssi_min, :rssi_avg, :success, :window_pdr, :agent_id, :recorded_at)
`
