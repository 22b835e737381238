package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	entry_date DATETIME NOT NULL,
	exit_date DATETIME,
	status TEXT NOT NULL,
	shares REAL NOT NULL,
	entry_price REAL NOT NULL,
	stop_price REAL NOT NULL,
	trim_history TEXT NOT NULL DEFAULT '[]',
	asset_type TEXT NOT NULL DEFAULT 'stock',
	total_realized_pnl REAL,
	pnl REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cash_flows (
	cash_flow_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_entry ON trades(entry_date);
CREATE INDEX IF NOT EXISTS idx_cash_flows_time ON cash_flows(time);
`
