package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type questionFlags struct {
	contractID     string
	classification string
	status         string
	asJSON         bool
}

func (f *questionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.contractID, "contract", "c", "", "contract identifier")
	cmd.Flags().StringVar(&f.classification, "classification", "", "job classification hint")
	cmd.Flags().StringVar(&f.status, "status", "", "employment status hint")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("contract")
}

func (f *questionFlags) hints() domain.Hints {
	return domain.Hints{Classification: f.classification, EmploymentStatus: f.status}
}

func newRetrieveCommand(a *app) *cobra.Command {
	var flags questionFlags
	cmd := &cobra.Command{
		Use:   "retrieve [question]",
		Short: "Retrieve the contract sections that answer a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			result, err := s.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "), flags.contractID, flags.hints())
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			if flags.asJSON {
				return printJSON(cmd, result)
			}
			printResult(cmd, result)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRouteCommand(a *app) *cobra.Command {
	var flags questionFlags
	cmd := &cobra.Command{
		Use:   "route [question]",
		Short: "Classify a question without searching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			qc, intent, err := s.Router.Route(cmd.Context(), strings.Join(args, " "), flags.contractID, flags.hints())
			if err != nil {
				return fmt.Errorf("route: %w", err)
			}
			if flags.asJSON {
				return printJSON(cmd, map[string]any{"query": qc, "intent": intent})
			}
			cmd.Printf("intent:     %s\n", intent.Type)
			if intent.Category != domain.CategoryNone {
				cmd.Printf("category:   %s (active=%t)\n", intent.Category, intent.ActiveSituation)
			}
			if intent.Classification != "" {
				cmd.Printf("class:      %s\n", intent.Classification)
			}
			if intent.Topic != "" {
				cmd.Printf("topic:      %s\n", intent.Topic)
			}
			cmd.Printf("confidence: %.2f\n", intent.Confidence)
			cmd.Printf("articles:   %v\n", intent.RelevantArticles)
			cmd.Printf("expanded:   %s\n", qc.ExpandedQuery)
			if intent.RequiresEscalation {
				cmd.Println("escalation: required")
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newReindexCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [contract]...",
		Short: "Re-embed and store the uploaded corpus of each contract",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := s.Indexer.IngestContract(cmd.Context(), id); err != nil {
					return fmt.Errorf("reindex %s: %w", id, err)
				}
				cmd.Printf("reindexed %s\n", id)
			}
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, r *domain.RetrievalResult) {
	cmd.Printf("contract %s generation %d intent %s\n", r.ContractID, r.Generation, r.Intent.Type)
	if r.EscalationRequired {
		cmd.Println("!! this question may need a union representative")
	}
	for _, f := range r.Degraded {
		cmd.Printf("degraded: %s (%s)\n", f.Stage, f.Reason)
	}
	if len(r.Chunks) == 0 {
		cmd.Println("No sections found.")
		return
	}
	for i, c := range r.Chunks {
		label := c.Chunk.Citation
		if label == "" {
			label = c.Chunk.ID
		}
		cmd.Printf("[%d] %s  %.3f  %s\n", i+1, label, c.FinalScore, c.Chunk.Title)
		cmd.Printf("    %s\n", snippet(c.Chunk.DisplayText(), 160))
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
