package inventory

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activitydataset (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		database TEXT NOT NULL,
		code TEXT NOT NULL,
		location TEXT,
		name TEXT,
		product TEXT,
		type TEXT,
		data BLOB NOT NULL,
		UNIQUE (database, code)
	)`,
	`CREATE INDEX IF NOT EXISTS activity_database ON activitydataset (database)`,
	`CREATE TABLE IF NOT EXISTS exchangedataset (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		input_database TEXT NOT NULL,
		input_code TEXT NOT NULL,
		output_database TEXT NOT NULL,
		output_code TEXT NOT NULL,
		type TEXT NOT NULL,
		formula TEXT,
		data BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS exchange_output ON exchangedataset (output_database, output_code)`,
	`CREATE INDEX IF NOT EXISTS exchange_input ON exchangedataset (input_database, input_code)`,
	`CREATE TABLE IF NOT EXISTS methoddataset (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		scope TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		node_database TEXT,
		node_code TEXT,
		data BLOB NOT NULL,
		PRIMARY KEY (scope, name)
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
}
