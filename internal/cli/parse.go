package cli

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/spf13/cobra"

	"buckperf/internal/buck"
	"buckperf/internal/models"
)

var (
	parseBuildLog   string
	parseVerboseLog string
	parseStdoutLog  string
)

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseBuildLog, "build-log", "", "path to a saved buck-out/bin/build.log")
	parseCmd.Flags().StringVar(&parseVerboseLog, "verbose-log", "", "path to a saved buck-out/log/buck-0.log")
	parseCmd.Flags().StringVar(&parseStdoutLog, "stdout-log", "", "path to saved buck build stdout")
	_ = parseCmd.MarkFlagRequired("build-log")
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse saved buck logs into a cache outcome summary",
	Long: `Parse re-runs the log analysis offline against a saved build log and
its matching rule key source, which helps diagnose a failed benchmark run
without re-building anything. Exactly one of --verbose-log and --stdout-log
must be given; it must be the source the original build would have used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			ruleKeyPath string
			pattern     *regexp.Regexp
		)
		switch {
		case parseVerboseLog != "" && parseStdoutLog != "":
			return fmt.Errorf("--verbose-log and --stdout-log are mutually exclusive")
		case parseVerboseLog != "":
			ruleKeyPath, pattern = parseVerboseLog, buck.RuleKeyVerbosePattern
		case parseStdoutLog != "":
			ruleKeyPath, pattern = parseStdoutLog, buck.RuleKeyStdoutPattern
		default:
			return fmt.Errorf("one of --verbose-log or --stdout-log is required")
		}

		ruleKeySource, err := os.Open(ruleKeyPath)
		if err != nil {
			return err
		}
		defer ruleKeySource.Close()

		ruleKeys, err := buck.ParseRuleKeys(ruleKeySource, pattern)
		if err != nil {
			return err
		}

		buildLog, err := os.Open(parseBuildLog)
		if err != nil {
			return err
		}
		defer buildLog.Close()

		cacheResults, ruleKeyMap, err := buck.ParseBuildLog(buildLog, ruleKeys)
		if err != nil {
			return err
		}

		outcomes := make([]string, 0, len(cacheResults))
		for outcome := range cacheResults {
			outcomes = append(outcomes, string(outcome))
		}
		sort.Strings(outcomes)

		fmt.Printf("%d rules, %d cache outcomes\n", len(ruleKeyMap), len(outcomes))
		for _, outcome := range outcomes {
			fmt.Printf("  %-30s %d\n", outcome, len(cacheResults[models.CacheOutcome(outcome)]))
		}
		return nil
	},
}
