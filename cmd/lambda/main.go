package main

import (
	"context"
	"flag"

	"claude-invocation/internal/config"
	"claude-invocation/internal/setup"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/manifold-inc/manifold-sdk/lib/eflag"
)

func main() {
	cfg := config.Register(flag.CommandLine)
	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()
	if err := config.Finalize(cfg, flag.CommandLine); err != nil {
		panic(err)
	}

	log, err := setup.NewLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	// Built once per execution environment and reused across invocations
	ih, shutdown, err := setup.NewInvocationHandler(context.Background(), cfg, log, true)
	if err != nil {
		panic(err)
	}
	defer shutdown()

	log.Infow("Lambda handler ready", "region", cfg.Region, "model", cfg.ModelID, "placement", cfg.SystemPlacement)
	lambda.Start(ih.HandleAPIGateway)
}
