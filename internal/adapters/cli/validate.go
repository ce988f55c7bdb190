package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-retrieval/internal/core/usecase"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/chunkstore"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/manifest"
)

func newManifestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "manifest", Short: "Inspect routing manifests"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]...",
		Short: "Parse and compile routing manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := validateManifest(path); err != nil {
					cmd.PrintErrf("%s: %v\n", path, err)
					failed++
					continue
				}
				cmd.Printf("%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d manifests invalid", failed, len(args))
			}
			return nil
		},
	})
	return cmd
}

func validateManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := manifest.Decode(data)
	if err != nil {
		return err
	}
	if m.ContractID == "" {
		m.ContractID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	_, err = usecase.CompileManifest(m)
	return err
}

func newCorpusCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "corpus", Short: "Inspect chunk corpora"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a chunk file and summarize its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			chunks, err := chunkstore.DecodeChunks(data)
			if err != nil {
				return err
			}
			id := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			gen, err := chunkstore.Build(id, 1, chunks, chunkstore.BuildOptions{})
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d chunks\n", id, gen.Size())
			for _, a := range gen.Articles() {
				cmd.Printf("  article %d  %-40s %d chunks\n", a.Number, a.Title, a.ChunkCount)
			}
			return nil
		},
	})
	return cmd
}
