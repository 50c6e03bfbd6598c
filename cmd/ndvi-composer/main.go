package main

import (
	"fmt"
	"os"

	"github.com/NoobML/ndvi-anomaly-detection/util"
)

func main() {
	if err := util.LoadEnvironment(); err != nil {
		util.LogAlert(&(util.BasicLogContext{}), err.Error())
	}
	if err := util.InitLogger(util.GetLogLevel(), util.GetLogFormat()); err != nil {
		util.LogAlert(&(util.BasicLogContext{}), fmt.Sprintf("Keeping default logger: %v", err))
	}
	util.LogAudit(&(util.BasicLogContext{}), util.LogAuditInput{Actor: "main()", Action: "startup", Actee: "self", Message: "Application Startup", Severity: util.INFO})
	err := createCliApp().Run(os.Args)
	if err != nil {
		util.LogAlert(&(util.BasicLogContext{}), fmt.Sprintf("Error executing CLI app: %v", err))
		os.Exit(1)
	}
}
