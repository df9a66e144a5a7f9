// The admin command manages subjects and model versions on a running
// server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/api"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/api/clients"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/cmd/flags"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/storage"
)

func main() {
	app := &cli.App{
		Name:  "biometric-admin",
		Usage: "Administer subjects and model versions",
		Flags: append([]cli.Flag{flags.ServerURL}, flags.LoggingFlags...),
		Commands: []*cli.Command{
			{
				Name:      "create-subject",
				Usage:     "register a subject for an external identifier",
				ArgsUsage: "<external-id>",
				Action:    runCreateSubject,
			},
			{
				Name:      "create-model",
				Usage:     "upload an inactive model version",
				ArgsUsage: "<version>",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{Name: "weights", Usage: "model weight values"},
					&cli.StringFlag{Name: "notes", Usage: "free-form notes"},
				},
				Action: runCreateModel,
			},
			{
				Name:      "activate-model",
				Usage:     "deploy a model version",
				ArgsUsage: "<version>",
				Action:    runActivateModel,
			},
			{
				Name:   "stats",
				Usage:  "show federation statistics",
				Action: runStats,
			},
			{
				Name:  "export-model",
				Usage: "archive the active model to a snapshot backend",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Value: "file://./snapshots",
						Usage: "snapshot backend URI (file://, s3://, ipfs://)",
					},
				},
				Action: runExportModel,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cCtx *cli.Context) *clients.Client {
	return clients.NewClient(cCtx.String(flags.ServerURL.Name))
}

func runCreateSubject(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one external ID argument")
	}

	resp, err := newClient(cCtx).CreateSubject(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("subject %s created for %s\n", resp.SubjectID, resp.ExternalID)
	return nil
}

func runCreateModel(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one version argument")
	}

	weights := cCtx.Float64Slice("weights")
	resp, err := newClient(cCtx).CreateModel(cCtx.Context, api.CreateModelRequest{
		Version:   cCtx.Args().First(),
		Dimension: len(weights),
		Weights:   weights,
		Notes:     cCtx.String("notes"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("model %s created\n", resp.Version)
	return nil
}

func runActivateModel(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one version argument")
	}

	resp, err := newClient(cCtx).ActivateModel(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("model %s activated at %s\n", resp.Version, resp.DeployedAt)
	return nil
}

func runExportModel(cCtx *cli.Context) error {
	log := flags.SetupLogger(cCtx, "biometric-admin")

	model, err := newClient(cCtx).ModelInfo(cCtx.Context)
	if err != nil {
		return err
	}
	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	loc, err := interfaces.NewSnapshotLocation(cCtx.String("to"))
	if err != nil {
		return err
	}
	backend, err := storage.NewSnapshotBackendFactory(log).BackendFor(loc)
	if err != nil {
		return err
	}

	id, err := backend.Store(cCtx.Context, data)
	if err != nil {
		return fmt.Errorf("archiving model: %w", err)
	}
	fmt.Printf("model %s archived as %s to %s\n", model.Version, id.String(), backend.LocationURI())
	return nil
}

func runStats(cCtx *cli.Context) error {
	stats, err := newClient(cCtx).Stats(cCtx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("participants:  %d\n", stats.TotalParticipants)
	fmt.Printf("contributions: %d\n", stats.TotalContributions)
	fmt.Printf("active model:  %s\n", stats.ActiveVersion)
	return nil
}
