package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Update CHANGELOG.md from the conventional commits in git history",
		Long: `Runs git-chglog over the git history. Commits are expected in the
conventional format, e.g.

  feat(hitechnic): add the EOPD long range mode
  fix(wifi): retry the baud rate probe

Examples:
  dev changelog
  dev changelog --next v0.4.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("could not get output flag: %w", err)
			}
			next, err := cmd.Flags().GetString("next")
			if err != nil {
				return fmt.Errorf("could not get next flag: %w", err)
			}
			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}

			chglogArgs := []string{"--output", output}
			if next != "" {
				chglogArgs = append(chglogArgs, "--next-tag", next)
			}
			slog.Info("running git-chglog", "args", chglogArgs)
			chglog := exec.Command("git-chglog", chglogArgs...)
			chglog.Stdout = os.Stdout
			chglog.Stderr = os.Stderr
			if err := chglog.Run(); err != nil {
				return fmt.Errorf("could not generate changelog: %w", err)
			}
			slog.Info("changelog updated", "output", output)
			return nil
		},
	}

	cmd.Flags().String("next", "", "tag of the upcoming release, e.g. v0.4.0")
	cmd.Flags().String("output", "CHANGELOG.md", "output file")

	return cmd
}
