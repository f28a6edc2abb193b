package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	detect "github.com/siembox/go-detection-engine"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Load and inspect the rule corpus",
	Long: `Rules loads the corpus from the configured directories and prints a
table of rules, optionally filtered by category, severity or enabled
state, along with a severity histogram.`,
	Run: rules,
}

func rules(cmd *cobra.Command, args []string) {
	store, err := detect.NewStore(detect.StoreConfig{
		Directory: viper.GetStringSlice("rules.dir"),
		Logger:    logrus.StandardLogger(),
	})
	if err != nil {
		logrus.Fatal(err)
	}
	result, err := store.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	filter := detect.Filter{Category: viper.GetString("rules.filter.category")}
	if viper.GetBool("rules.filter.enabled") {
		enabled := true
		filter.Enabled = &enabled
	}
	listed := store.List(filter)

	severity := strings.ToLower(viper.GetString("rules.filter.severity"))
	histogram := make(map[detect.Severity]int)
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSEVERITY\tCATEGORY\tENABLED")
	var shown int
	for _, rule := range listed {
		histogram[rule.Level]++
		if severity != "" && rule.Level.String() != severity {
			continue
		}
		shown++
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			rule.ID, truncate(rule.Title, 60), rule.Level, rule.Category, rule.Enabled)
	}
	w.Flush()

	fmt.Printf("\n%s, %d shown\n", result, shown)
	fmt.Println("\nRules by severity:")
	for s := detect.SeverityInformational; s <= detect.SeverityCritical; s++ {
		if count := histogram[s]; count > 0 {
			fmt.Printf("  %s: %d\n", s, count)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.PersistentFlags().String("category", "",
		`Only show rules in this category.`)
	viper.BindPFlag("rules.filter.category",
		rulesCmd.PersistentFlags().Lookup("category"))

	rulesCmd.PersistentFlags().String("severity", "",
		`Only show rules with this severity.`)
	viper.BindPFlag("rules.filter.severity",
		rulesCmd.PersistentFlags().Lookup("severity"))

	rulesCmd.PersistentFlags().Bool("enabled-only", false,
		`Only show enabled rules.`)
	viper.BindPFlag("rules.filter.enabled",
		rulesCmd.PersistentFlags().Lookup("enabled-only"))
}
