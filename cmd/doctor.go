package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lunamoth/heartflow/internal/config"
	"github.com/lunamoth/heartflow/internal/providers"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the config and reasoning endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				fmt.Printf("config: FAIL (%v)\n", err)
				return err
			}
			fmt.Println("config: ok")
			fmt.Printf("conversations: %d\n", len(cfg.Conversations))

			provider := providers.NewOpenAICompatible(
				cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			start := time.Now()
			comp, err := provider.Complete(ctx, providers.Request{
				Prompt:    "Reply with the single word: ok",
				MaxTokens: 4,
			})
			if err != nil {
				fmt.Printf("provider %s: FAIL (%v)\n", provider.Name(), err)
				return err
			}
			fmt.Printf("provider %s: ok (%q in %s)\n",
				provider.Name(), comp.Text, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
