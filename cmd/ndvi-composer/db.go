package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/ledger"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	_ "github.com/lib/pq"
)

const connectionStringEnv = "DATABASE_URL"
const vcapServicesEnv = "VCAP_SERVICES"
const pzPostgresService = "pz-postgres"

//getDbConnection opens a new database connection.
func getDbConnection(ctx util.LogContext) (*sql.DB, error) {
	connStr := os.Getenv(connectionStringEnv)
	if connStr == "" {
		util.LogInfo(ctx, "No DB connection found in DATABASE_URL, checking VCAP_SERVICES")
		services, err := util.ParseVcapServices([]byte(os.Getenv(vcapServicesEnv)))
		if err != nil {
			return nil, errors.New("Could not get DB connection from DATABASE_URL or VCAP_SERVICES (no valid VCAP_SERVICES found): " + err.Error())
		}
		service := services.FindServiceByName(pzPostgresService)
		if service == nil {
			return nil, fmt.Errorf("Could not get DB connection from DATABASE_URL or VCAP_SERVICES ('pz-postgres' service not found); available services: %v",
				services.ServiceNames())
		}
		connStr, err = service.Credentials.String("uri")
		if err != nil {
			return nil, errors.New("Could not get DB connection from DATABASE_URL or VCAP_SERVICES (error getting URI string): " + err.Error())
		}
	}

	// pq expects SSL to be enabled if not explicitly disabled
	dbURI, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	params := dbURI.Query()
	if params.Get("sslmode") == "" {
		params.Set("sslmode", "disable")
	}
	dbURI.RawQuery = params.Encode()

	util.LogInfo(ctx, fmt.Sprintf("Creating database connection at: `%s`", dbURI.Redacted()))
	db, err := sql.Open("postgres", dbURI.String())
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, err
}

var getDbConnectionFunc = getDbConnection

// databaseConfigured reports whether a task ledger is available
func databaseConfigured() bool {
	return os.Getenv(connectionStringEnv) != "" || os.Getenv(vcapServicesEnv) != ""
}

// openRecorder returns the task ledger if a database is configured and
// reachable, otherwise a recorder that keeps nothing
func openRecorder(ctx util.LogContext) (composite.Recorder, func()) {
	if !databaseConfigured() {
		return composite.NopRecorder{}, func() {}
	}
	store, err := ledger.NewStore(getDbConnectionFunc)
	if err != nil {
		util.LogAlert(ctx, fmt.Sprintf("Task ledger unavailable, tasks will not be recorded: %v", err))
		return composite.NopRecorder{}, func() {}
	}
	return store, func() { store.Close() }
}
