package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/pkg/logger"
)

type analyzeOptions struct {
	roleFile string
	cvFile   string
}

func newAnalyzeCmd(root *rootOptions, f factories) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one CV against a role description and print the result",
		Long: "Analyze sends the role description and CV text to the analysis service and prints the\n" +
			"validated analysis as JSON. Nothing is stored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := root.setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			role, err := readInput(cmd.InOrStdin(), opts.roleFile)
			if err != nil {
				return fmt.Errorf("read role description: %w", err)
			}
			cv, err := readInput(cmd.InOrStdin(), opts.cvFile)
			if err != nil {
				return fmt.Errorf("read cv: %w", err)
			}
			if strings.TrimSpace(cv) == "" {
				return fmt.Errorf("cv text is empty")
			}

			gen, err := f.generator(ctx, cfg)
			if err != nil {
				return fmt.Errorf("analysis client: %w", err)
			}
			client := analysis.New(gen, analysis.WithLogger(log.Named("analysis")))
			result, err := client.Analyze(ctx, role, cv)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&opts.roleFile, "role-file", "r", "", "file holding the role description")
	cmd.Flags().StringVarP(&opts.cvFile, "cv-file", "c", "", `file holding the CV text ("-" reads stdin)`)
	_ = cmd.MarkFlagRequired("role-file")
	_ = cmd.MarkFlagRequired("cv-file")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
