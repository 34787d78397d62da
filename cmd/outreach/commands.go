package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/outreach/internal/api"
	"github.com/kalambet/outreach/internal/apollo"
	"github.com/kalambet/outreach/internal/config"
	"github.com/kalambet/outreach/internal/importer"
	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/storage"
)

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import prospects from a CSV export",
	Long: `Import prospects from a CSV file with at least an "Email" column.
Known optional columns: First Name, Last Name, Title, Company Name, Website.
Prospects that already exist (same id or email) are left untouched.

Example:
  outreach import ./leads.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening csv: %w", err)
		}
		defer f.Close()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		res, err := importer.Import(f, store)
		if err != nil {
			return err
		}
		if res.Skipped > 0 {
			printWarning("Skipped %d rows without an email address", res.Skipped)
		}
		printSuccess("Imported %d of %d rows", res.Imported, res.Rows)
		return nil
	},
}

// --- enroll ---

var enrollCmd = &cobra.Command{
	Use:   "enroll <prospect-id>",
	Short: "Enroll one prospect in a sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, _ := cmd.Flags().GetString("sequence")
		return withEnroller(seq, func(ctx context.Context, e *sequence.Enroller, seqID string) error {
			if err := e.Enroll(ctx, args[0], seqID); err != nil {
				return err
			}
			printSuccess("Enrolled %s in %s", args[0], seqID)
			return nil
		})
	},
}

var enrollAllCmd = &cobra.Command{
	Use:   "enroll-all",
	Short: "Enroll every prospect that has no enrollment yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, _ := cmd.Flags().GetString("sequence")
		return withEnroller(seq, func(ctx context.Context, e *sequence.Enroller, seqID string) error {
			n, err := e.EnrollAll(ctx, seqID)
			if err != nil {
				return err
			}
			printSuccess("Enrolled %d prospects in %s", n, seqID)
			return nil
		})
	},
}

// withEnroller resolves the requested sequence (the configured one when
// empty) and hands fn an enroller over the local store.
func withEnroller(requested string, fn func(context.Context, *sequence.Enroller, string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, seqID, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	if requested != "" {
		if _, ok := catalog[requested]; !ok {
			return fmt.Errorf("unknown sequence %q", requested)
		}
		seqID = requested
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	return fn(context.Background(), sequence.NewEnroller(store, sequence.RealClock()), seqID)
}

func init() {
	enrollCmd.Flags().String("sequence", "", "sequence id (default: the configured sequence)")
	enrollAllCmd.Flags().String("sequence", "", "sequence id (default: the configured sequence)")
}

// --- due ---

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List enrollments whose next step is due now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		due, err := store.GetDueActions(time.Now().UTC())
		if err != nil {
			return err
		}
		if len(due) == 0 {
			printStep("Nothing is due")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROSPECT\tSEQUENCE\tSTEP\tDUE")
		for _, e := range due {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", e.ID, e.ProspectID, e.SequenceID, e.CurrentStep, e.NextActionAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all enrollments (prospects are kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL enrollments. Use --confirm to proceed.")
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		n, err := store.ClearAllEnrollments()
		if err != nil {
			return err
		}
		printSuccess("Deleted %d enrollments", n)
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- research ---

var researchCmd = &cobra.Command{
	Use:   "research <prospect-id>",
	Short: "Run hook research for one prospect without sending anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Require("research.serper_api_key"); err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		p, err := store.GetProspect(args[0])
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		eng, err := detectEngine(cfg)
		if err != nil {
			return err
		}

		printStep("Researching %s at %s", p.FullName, p.CompanyName)
		res := newResearcher(cfg, eng).Research(cmd.Context(), p)
		out := cmd.OutOrStdout()
		printStatus(out, "Result", "%s", res.Kind)
		switch {
		case res.Hook != "":
			printStatus(out, "Hook", "%s", res.Hook)
		case res.Err != nil:
			printStatus(out, "Error", "%v", res.Err)
		case res.Reason != "":
			printStatus(out, "Reason", "%s", res.Reason)
		}
		return nil
	},
}

// --- replies ---

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "List triaged replies, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		replies, err := store.ListReplies(limit, 0)
		if err != nil {
			return err
		}
		if len(replies) == 0 {
			printStep("No replies yet")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RECEIVED\tPROSPECT\tINTENT\tSUBJECT")
		for _, r := range replies {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ReceivedAt.Format(time.DateTime), r.ProspectID, r.Intent, r.Subject)
		}
		return tw.Flush()
	},
}

func init() {
	repliesCmd.Flags().Int("limit", 20, "maximum number of replies to list")
}

// --- source ---

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Find prospects through Apollo and store them",
	Long: `Search Apollo's people database and store every contact with an email.

Example:
  outreach source --title "Head of Marketing" --location Berlin --employees 11,50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		titles, _ := cmd.Flags().GetStringSlice("title")
		locations, _ := cmd.Flags().GetStringSlice("location")
		employees, _ := cmd.Flags().GetStringArray("employees")
		perPage, _ := cmd.Flags().GetInt("per-page")
		if len(titles) == 0 {
			return fmt.Errorf("at least one --title is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Require("apollo.api_key"); err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		client := apollo.NewClient(cfg.Apollo.APIKey, cfg.Apollo.BaseURL)
		found, stored, err := client.Source(cmd.Context(), apollo.SearchParams{
			Titles:         titles,
			Locations:      locations,
			EmployeeRanges: employees,
			Page:           1,
			PerPage:        perPage,
		}, store)
		if err != nil {
			return err
		}
		printSuccess("Found %d contacts, stored %d with an email", found, stored)
		return nil
	},
}

func init() {
	sourceCmd.Flags().StringSlice("title", nil, "job title to match (repeatable)")
	sourceCmd.Flags().StringSlice("location", nil, "person location (repeatable)")
	sourceCmd.Flags().StringArray("employees", nil, `employee range as "min,max" (repeatable)`)
	sourceCmd.Flags().Int("per-page", 25, "contacts per search page")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show prospect and enrollment counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		if newAPIClient(cfg).healthy(ctx) {
			printStatus(out, "Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus(out, "Server", "stopped")
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		st, err := api.BuildStatus(store, time.Now().UTC())
		if err != nil {
			return err
		}
		printStatus(out, "Prospects", "%d", st.Prospects)
		printStatus(out, "Enrollments", "%s", formatCounts(st.Enrollments))
		printStatus(out, "Due now", "%d", st.DueNow)
		printStatus(out, "LLM", "%s (%s / %s)", cfg.LLM.Provider, cfg.LLM.FastModel, cfg.LLM.DeepModel)
		printStatus(out, "Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

func formatCounts(counts map[string]int) string {
	var parts []string
	for _, s := range []string{storage.StatusActive, storage.StatusFinished, storage.StatusFailed} {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	return strings.Join(parts, " ")
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
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Plain keys go to the config file, secrets to\n" +
		"the platform secret store (macOS Keychain, or secrets.json under\n" +
		"$XDG_DATA_HOME/outreach). Environment variables still win.\n\nKeys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		if config.IsSecret(key) {
			value = "********"
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
