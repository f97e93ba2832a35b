package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/config"
)

func actionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the actions declared in the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cfg.Manifest == "" {
				fmt.Println("no action manifest configured")
				return nil
			}

			m, err := actions.LoadManifest(cfg.Manifest)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPOLICY\tPARALLEL\tDESCRIPTION")
			for _, a := range m.Actions {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n",
					a.Name, policySummary(a.Activation), a.Parallel, a.Description)
			}
			return w.Flush()
		},
	}
}

func policySummary(p actions.Policy) string {
	switch p.Kind {
	case actions.PolicyRandom:
		return fmt.Sprintf("random(%.2f)", p.Probability)
	case actions.PolicyKeyword:
		return "keyword(" + strings.Join(p.Keywords, ",") + ")"
	case actions.PolicyLLMJudge:
		return "llm_judge"
	default:
		return string(p.Kind)
	}
}
