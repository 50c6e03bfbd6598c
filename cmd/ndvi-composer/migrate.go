package main

import (
	"github.com/pressly/goose"
	cli "gopkg.in/urfave/cli.v1"

	_ "github.com/NoobML/ndvi-anomaly-detection/migrations"
	"github.com/NoobML/ndvi-anomaly-detection/util"
)

func migrateDatabaseAction(*cli.Context) error {
	logContext := &(util.BasicLogContext{})
	database, err := getDbConnectionFunc(logContext)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not open database connection.", err)
	}
	defer database.Close()

	if err = goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Run("up", database, ".")
}
