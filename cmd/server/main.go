package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/rentdesk/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool               `help:"Enable debug mode." env:"RENTDESK_DEBUG"`
		Version kong.VersionFlag   `help:"Print version and exit."`
		Server  commands.ServerCmd `cmd:"" default:"withargs" help:"Start the onboarding API server"`
		Reap    commands.ReapCmd   `cmd:"" help:"Run a single stale session sweep and exit"`
		Plans   commands.PlansCmd  `cmd:"" help:"List or seed the subscription plan catalog"`
		Keygen  commands.KeygenCmd `cmd:"" help:"Generate an ES256 token signing key"`
	}
)

func main() {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("rentdesk"),
		kong.Description("Rental agency onboarding and subscription provisioning service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
