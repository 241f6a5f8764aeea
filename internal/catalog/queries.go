package catalog

const (
	queryTableExists = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`
	queryPartitions  = `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'VP\_%' ESCAPE '\' ORDER BY name`

	queryCreateTripleTable = `CREATE TABLE tripletable (s TEXT NOT NULL, p TEXT NOT NULL, o TEXT NOT NULL)`
	queryIndexTripleTable  = `CREATE INDEX idx_tripletable_p ON tripletable(p)`
	queryInsertTriple      = `INSERT INTO tripletable (s, p, o) VALUES (?, ?, ?)`
	queryDropTripleTable   = `DROP TABLE IF EXISTS tripletable`

	queryCreateSourceTable = `CREATE TABLE IF NOT EXISTS triple_source (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	location TEXT NOT NULL,
	registered_at DATETIME NOT NULL
)`
	querySelectSource = `SELECT location FROM triple_source WHERE id = 1`
	queryUpsertSource = `INSERT INTO triple_source (id, location, registered_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET location = excluded.location, registered_at = excluded.registered_at`

	queryDistinctPredicates = `SELECT DISTINCT p FROM tripletable`

	// partition statements take a quoted identifier through %s, values are bound
	queryCreatePartition = `CREATE TABLE %s AS SELECT s AS s, o AS o FROM tripletable WHERE p = ?`
	queryDropPartition   = `DROP TABLE IF EXISTS %s`
	queryCountRows       = `SELECT COUNT(*) FROM %s`
	queryCountDistinct   = `SELECT COUNT(DISTINCT %s) FROM %s`
	queryScanPartition   = `SELECT s, o FROM %s`
)
