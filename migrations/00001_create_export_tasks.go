package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00001, Down00001)
}

//Up00001 creates the export task ledger
func Up00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS public.export_tasks
		(
			id character varying(64) NOT NULL PRIMARY KEY,
			description character varying(256) NOT NULL,
			operation_name character varying(512) NOT NULL,
			month_start date NOT NULL,
			month_end date NOT NULL,
			west double precision NOT NULL,
			south double precision NOT NULL,
			east double precision NOT NULL,
			north double precision NOT NULL,
			scale double precision NOT NULL,
			file_format character varying(32) NOT NULL,
			max_pixels bigint NOT NULL,
			engine character varying(16) NOT NULL,
			submitted_at timestamp with time zone NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_export_tasks_month
		ON public.export_tasks (month_start, submitted_at);
		`)
	return err
}

//Down00001 drops the export task ledger
func Down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS public.export_tasks;`)
	return err
}
