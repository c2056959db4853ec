package main

import (
	"github.com/tradegraph/backend/internal/server"
	"github.com/tradegraph/backend/internal/util"
	"github.com/tradegraph/backend/pkg/logger"
	"github.com/tradegraph/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
