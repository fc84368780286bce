package main

import (
	"os"

	"github.com/tphakala/threshcorder/cmd"
	"github.com/tphakala/threshcorder/internal/buildinfo"
)

func main() {
	os.Exit(cmd.Execute(buildinfo.Current()))
}
