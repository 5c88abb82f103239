package main

import (
	"fmt"
	"time"

	"github.com/learnizone/enrollcore/pkg/api"
	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/reconciler"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll COURSE",
	Short: "Enroll a user in a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		record, err := rt.svc.Enroll(cmd.Context(), userFlag(cmd), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, record.View())
	},
}

var unenrollCmd = &cobra.Command{
	Use:   "unenroll COURSE",
	Short: "Unenroll a user from a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.svc.Unenroll(cmd.Context(), userFlag(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Unenrolled %s from %s (%s)\n", userFlag(cmd), args[0], rt.svc.Policy())
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress COURSE",
	Short: "Record progress on an enrollment",
	Long: `Record progress on the user's enrollment. Only the flags that are set are
applied; --time-spent is added to the stored total.

Examples:
  enrollcore progress go-101 --user alice --value 0.5
  enrollcore progress go-101 --user alice --time-spent 30 --lessons 4 --total-lessons 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := progressUpdate(cmd)
		if err != nil {
			return err
		}

		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		record, err := rt.svc.RecordProgress(cmd.Context(), userFlag(cmd), args[0], update)
		if err != nil {
			return err
		}
		return printResult(cmd, record.View())
	},
}

var certificateCmd = &cobra.Command{
	Use:   "certificate COURSE",
	Short: "Issue the certificate for a completed enrollment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		record, err := rt.svc.IssueCertificate(cmd.Context(), userFlag(cmd), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, record.View())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's enrollments",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawStatuses, _ := cmd.Flags().GetStringSlice("status")
		inProgress, _ := cmd.Flags().GetBool("in-progress")

		statuses := make([]types.EnrollmentStatus, 0, len(rawStatuses))
		for _, raw := range rawStatuses {
			status, err := types.ParseEnrollmentStatus(raw)
			if err != nil {
				return err
			}
			statuses = append(statuses, status)
		}

		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		var records []*types.Enrollment
		if inProgress {
			records, err = rt.svc.ListInProgress(cmd.Context(), userFlag(cmd))
		} else {
			records, err = rt.svc.ListEnrollments(cmd.Context(), userFlag(cmd), statuses...)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, types.Views(records))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats COURSE",
	Short: "Show enrollment statistics for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		stats, err := rt.svc.CourseStats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, stats)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Audit course counters and user indexes for drift",
	Long: `Scan every enrollment and compare the stored enrolledStudents counters and
enrolledCourses indexes with the values implied by the records. With
--repair, drifted values are rewritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repair, _ := cmd.Flags().GetBool("repair")

		rt, err := open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		report, err := reconciler.NewReconciler(rt.store, rt.svc, repair).Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		if err := printResult(cmd, report); err != nil {
			return err
		}
		if !report.Consistent() && !repair {
			return fmt.Errorf("%d drifted values found", len(report.Drifts))
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token USER",
	Short: "Issue an API bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tokens, err := api.NewTokenManager(cfg.API.JWTSecret, cfg.API.JWTIssuer, ttl)
		if err != nil {
			return err
		}
		token, err := tokens.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func userFlag(cmd *cobra.Command) string {
	user, _ := cmd.Flags().GetString("user")
	return user
}

func progressUpdate(cmd *cobra.Command) (enrollment.ProgressUpdate, error) {
	var update enrollment.ProgressUpdate
	flags := cmd.Flags()

	if flags.Changed("value") {
		v, _ := flags.GetFloat64("value")
		update.Progress = &v
	}
	update.TimeSpentMinutes, _ = flags.GetInt("time-spent")
	if flags.Changed("lessons") {
		v, _ := flags.GetInt("lessons")
		update.LessonsCompleted = &v
	}
	if flags.Changed("total-lessons") {
		v, _ := flags.GetInt("total-lessons")
		update.TotalLessons = &v
	}
	if flags.Changed("quiz-score") {
		v, _ := flags.GetFloat64("quiz-score")
		update.AverageQuizScore = &v
	}

	if update.Progress == nil && update.TimeSpentMinutes == 0 && update.LessonsCompleted == nil &&
		update.TotalLessons == nil && update.AverageQuizScore == nil {
		return update, fmt.Errorf("%w: nothing to update", enrollment.ErrInvalidArgument)
	}
	return update, nil
}

func init() {
	for _, c := range []*cobra.Command{enrollCmd, unenrollCmd, progressCmd, certificateCmd, listCmd} {
		c.Flags().StringP("user", "u", "", "User ID (required)")
		_ = c.MarkFlagRequired("user")
	}

	progressCmd.Flags().Float64("value", 0, "Progress in [0,1]")
	progressCmd.Flags().Int("time-spent", 0, "Minutes to add to time spent")
	progressCmd.Flags().Int("lessons", 0, "Lessons completed")
	progressCmd.Flags().Int("total-lessons", 0, "Total lessons")
	progressCmd.Flags().Float64("quiz-score", 0, "Average quiz score")

	listCmd.Flags().StringSlice("status", nil, "Filter by status (repeatable or comma-separated)")
	listCmd.Flags().Bool("in-progress", false, "Only ACTIVE enrollments with 0 < progress < 1")

	reconcileCmd.Flags().Bool("repair", false, "Rewrite drifted counters and indexes")

	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(unenrollCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(certificateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}
