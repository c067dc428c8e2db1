package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillkb/quill/internal/backend"
	"github.com/quillkb/quill/internal/config"
	"github.com/quillkb/quill/internal/snippets"
)

// --- rewrite ---

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <text>",
	Short: "Rewrite text with adjustable tone and length",
	Long: `Rewrite text with adjustable tone and length.

Examples:
  quill rewrite "hey can u send me the doc" --tone 0.9
  quill rewrite "long rambling paragraph here" --length 0.9
  quill rewrite "some text" --preset formal-short`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		tone, _ := cmd.Flags().GetFloat64("tone")
		length, _ := cmd.Flags().GetFloat64("length")
		presetName, _ := cmd.Flags().GetString("preset")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		params := backend.RewriteParams{
			Text:   text,
			Tone:   tone,
			Length: length,
			Locale: cfg.Client.Locale,
		}

		var store *snippets.Store
		if presetName != "" {
			store, err = snippets.Open(cfg.Storage.DataDir)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			preset, err := findPresetByName(store, presetName)
			if err != nil {
				return err
			}
			params.PresetID = preset.ID
			params.Tone = preset.Tone
			params.Length = preset.Length
		}

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Rewrite(cmd.Context(), params)
		if err != nil {
			return err
		}

		fmt.Println(result)
		recordHistory(cfg, store, "rewrite", text, result)
		return nil
	},
}

func init() {
	rewriteCmd.Flags().Float64("tone", 0.5, "tone from 0 (casual) to 1 (formal)")
	rewriteCmd.Flags().Float64("length", 0.5, "length from 0 (detailed) to 1 (brief)")
	rewriteCmd.Flags().String("preset", "", "preset name overriding tone and length")
}

// findPresetByName resolves a preset by name, falling back to ID lookup so
// both `--preset formal-short` and `--preset <uuid>` work.
func findPresetByName(store *snippets.Store, name string) (snippets.Preset, error) {
	presets, err := store.ListPresets()
	if err != nil {
		return snippets.Preset{}, fmt.Errorf("listing presets: %w", err)
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	if p, err := store.Preset(name); err == nil {
		return p, nil
	}
	return snippets.Preset{}, fmt.Errorf("preset %q not found", name)
}

// recordHistory saves a completed operation, opening the store lazily when
// the command did not already need one. History is best effort.
func recordHistory(cfg config.Config, store *snippets.Store, op, input, output string) {
	if store == nil {
		s, err := snippets.Open(cfg.Storage.DataDir)
		if err != nil {
			return
		}
		defer s.Close()
		store = s
	}
	if _, err := store.RecordEntry(snippets.Entry{Operation: op, Input: input, Output: output}); err != nil {
		printWarning("could not record history: %v", err)
	}
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <query>",
	Short: "Ask the writing assistant a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Chat(cmd.Context(), backend.ChatParams{Query: query})
		if err != nil {
			return err
		}

		fmt.Println(result)
		recordHistory(cfg, nil, "chat", query, result)
		return nil
	},
}

// --- presets ---

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage rewrite presets",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := snippets.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		presets, err := store.ListPresets()
		if err != nil {
			return err
		}
		if len(presets) == 0 {
			fmt.Println("No presets saved.")
			return nil
		}
		for _, p := range presets {
			fmt.Printf("%s  %s  tone=%.2f length=%.2f\n",
				colorize(colorCyan, p.ID[:8]),
				colorize(colorBold, p.Name),
				p.Tone, p.Length,
			)
		}
		return nil
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a preset (overwrites an existing name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tone, _ := cmd.Flags().GetFloat64("tone")
		length, _ := cmd.Flags().GetFloat64("length")
		if tone < 0 || tone > 1 || length < 0 || length > 1 {
			return fmt.Errorf("tone and length must be within [0,1]")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := snippets.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		p, err := store.SavePreset(snippets.Preset{Name: args[0], Tone: tone, Length: length})
		if err != nil {
			return err
		}
		printSuccess("Saved preset %s (%s)", p.Name, p.ID[:8])
		return nil
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete <name-or-id>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := snippets.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		p, err := findPresetByName(store, args[0])
		if err != nil {
			return err
		}
		if err := store.DeletePreset(p.ID); err != nil {
			return err
		}
		printSuccess("Deleted preset %s", p.Name)
		return nil
	},
}

func init() {
	presetsSaveCmd.Flags().Float64("tone", 0.5, "tone from 0 (casual) to 1 (formal)")
	presetsSaveCmd.Flags().Float64("length", 0.5, "length from 0 (detailed) to 1 (brief)")
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsSaveCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent rewrite and chat results",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := snippets.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		entries, err := store.RecentEntries(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			output := e.Output
			if len(output) > 80 {
				output = output[:80] + "..."
			}
			fmt.Printf("%s  %s  %-7s  %s\n",
				colorize(colorCyan, e.ID[:8]),
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				e.Operation,
				output,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to show")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		status := client.Preflight(ctx)
		printStatus("Backend", "%s", cfg.Backend.BaseURL)
		printStatus("Network", "%s", onlineLabel(status.Network))
		printStatus("Health", "%s", healthLabel(status.Backend))
		printStatus("Breaker", "%s", client.BreakerState())
		if cfg.Backend.APIKey == "" {
			printStatus("API key", "not configured")
		} else {
			printStatus("API key", "configured")
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

func onlineLabel(ok bool) string {
	if ok {
		return "online"
	}
	return "offline"
}

func healthLabel(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unreachable"
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
