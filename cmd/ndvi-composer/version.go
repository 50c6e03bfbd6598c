package main

import (
	"fmt"

	cli "gopkg.in/urfave/cli.v1"
)

var version = "1.0.0"

func versionAction(c *cli.Context) {
	fmt.Fprintln(c.App.Writer, c.App.Name, version)
}
