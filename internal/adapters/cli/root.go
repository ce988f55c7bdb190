// Package cli implements the retrievectl command tree.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// Services are built lazily so offline commands never dial collaborators.
type Services struct {
	Retriever ports.Retriever
	Router    ports.QueryRouter
	Indexer   ports.ChunkIngestor
	Close     func()
}

type ServiceFactory func(ctx context.Context) (*Services, error)

type app struct {
	factory  ServiceFactory
	services *Services
}

func (a *app) load(ctx context.Context) (*Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	if a.factory == nil {
		return nil, errors.New("services not configured")
	}
	s, err := a.factory(ctx)
	if err != nil {
		return nil, err
	}
	a.services = s
	return s, nil
}

func (a *app) close() {
	if a.services != nil && a.services.Close != nil {
		a.services.Close()
	}
}

func NewRootCommand(factory ServiceFactory, version string) *cobra.Command {
	a := &app{factory: factory}
	root := &cobra.Command{
		Use:           "retrievectl",
		Short:         "Query and maintain contract retrieval indexes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.AddCommand(
		newRetrieveCommand(a),
		newRouteCommand(a),
		newReindexCommand(a),
		newManifestCommand(),
		newCorpusCommand(),
	)
	return root
}
