package cli

import (
	"context"

	"github.com/spf13/cobra"

	"buckperf/internal/buck"
	"buckperf/internal/config"
	"buckperf/internal/db"
	"buckperf/internal/hg"
	"buckperf/internal/logging"
	"buckperf/internal/models"
	"buckperf/internal/perftest"
)

var (
	runPerfTestID  string
	runRevisions   int
	runIterations  int
	runTargets     []string
	runRepo        string
	runProject     string
	runBuckPath    string
	runOldRevision string
	runNewRevision string
	runResultsDB   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPerfTestID, "perftest-id", "", "identifier of this performance test")
	runCmd.Flags().IntVar(&runRevisions, "revisions-to-go-back", 0, "maximum number of revisions to go back when testing")
	runCmd.Flags().IntVar(&runIterations, "iterations-per-diff", 0, "number of build iterations per tested revision")
	runCmd.Flags().StringArrayVar(&runTargets, "targets-to-build", nil, "target to build (repeatable, entries may be comma-separated)")
	runCmd.Flags().StringVar(&runRepo, "repo-under-test", "", "path to the repo under test")
	runCmd.Flags().StringVar(&runProject, "project-under-test", "", "project folder being tested, relative to the repo")
	runCmd.Flags().StringVar(&runBuckPath, "path-to-buck", "", "path to the buck binary")
	runCmd.Flags().StringVar(&runOldRevision, "old-buck-revision", "", "the original buck revision")
	runCmd.Flags().StringVar(&runNewRevision, "new-buck-revision", "", "the new buck revision")
	runCmd.Flags().StringVar(&runResultsDB, "results-db", "", "SQLite file to record per-build results into")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the buck performance test",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		test := cfg.Test
		applyRunFlags(cmd, &test)
		if cmd.Flags().Changed("results-db") {
			cfg.Results.Path = runResultsDB
		}

		if err := test.Validate(); err != nil {
			return err
		}

		var builder perftest.Builder = buck.NewInvoker(&test)

		finishRun := func(error) {}
		if cfg.Results.Path != "" {
			database, err := db.Open(cfg.Results.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			runs := db.NewRunRepository(database)
			run := &models.PerfRun{PerfTestID: test.PerfTestID}
			if err := runs.Create(ctx, run); err != nil {
				return err
			}
			logging.Info().Str("run_id", run.ID).Str("path", cfg.Results.Path).Msg("recording results")

			builder = perftest.NewRecordingBuilder(builder, db.NewBuildRepository(database), run.ID)
			finishRun = func(runErr error) {
				status := models.RunStatusCompleted
				if runErr != nil {
					status = models.RunStatusFailed
				}
				if err := runs.Finish(ctx, run.ID, status); err != nil {
					logging.Error().Err(err).Msg("failed to finalize run record")
				}
			}
		}

		orchestrator := perftest.NewOrchestrator(&test, builder, hg.NewClient(""))
		err := orchestrator.Run(ctx)
		finishRun(err)
		return err
	},
}

// applyRunFlags overrides loaded config fields with any flags the user set,
// keeping flags as the highest-precedence source.
func applyRunFlags(cmd *cobra.Command, test *config.PerfTestConfig) {
	flags := cmd.Flags()
	if flags.Changed("perftest-id") {
		test.PerfTestID = runPerfTestID
	}
	if flags.Changed("revisions-to-go-back") {
		test.RevisionsToGoBack = runRevisions
	}
	if flags.Changed("iterations-per-diff") {
		test.IterationsPerDiff = runIterations
	}
	if flags.Changed("targets-to-build") {
		test.TargetsToBuild = runTargets
	}
	if flags.Changed("repo-under-test") {
		test.RepoUnderTest = runRepo
	}
	if flags.Changed("project-under-test") {
		test.ProjectUnderTest = runProject
	}
	if flags.Changed("path-to-buck") {
		test.PathToBuck = runBuckPath
	}
	if flags.Changed("old-buck-revision") {
		test.OldBuckRevision = runOldRevision
	}
	if flags.Changed("new-buck-revision") {
		test.NewBuckRevision = runNewRevision
	}
}
