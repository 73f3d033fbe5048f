package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

const defaultSeedTimeout = 30 * time.Second

type seedOptions struct {
	file    string
	baseURL string
	timeout time.Duration
}

// seedRole is one entry of the fixture's roles list.
type seedRole struct {
	Title       string `koanf:"title" json:"title"`
	Description string `koanf:"description" json:"description"`
}

func newSeedCmd() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create roles from a YAML fixture through the HTTP API",
		Example: `  shortlist seed --file roles.yaml --url http://localhost:9080

  # roles.yaml
  roles:
    - title: AI Engineer
      description: Build and ship ML systems.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := loadSeed(opts.file)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return seed(ctx, cmd.OutOrStdout(), &http.Client{Timeout: opts.timeout}, opts.baseURL, roles)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML fixture with a roles list")
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultSeedTimeout, "overall timeout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadSeed(path string) ([]seedRole, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var roles []seedRole
	if err := k.Unmarshal("roles", &roles); err != nil {
		return nil, fmt.Errorf("decode roles in %s: %w", path, err)
	}
	for i, r := range roles {
		if strings.TrimSpace(r.Title) == "" {
			return nil, fmt.Errorf("roles[%d]: title is required", i)
		}
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("%s: no roles", path)
	}
	return roles, nil
}

// seed posts roles in fixture order and stops at the first failure.
func seed(ctx context.Context, out io.Writer, client *http.Client, baseURL string, roles []seedRole) error {
	url := strings.TrimRight(baseURL, "/") + "/roles"
	for _, r := range roles {
		body, err := json.Marshal(r)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("create role %q: %w", r.Title, err)
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("create role %q: %w", r.Title, err)
		}
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("create role %q: %s: %s", r.Title, resp.Status, strings.TrimSpace(string(data)))
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &created); err != nil {
			return fmt.Errorf("create role %q: decode response: %w", r.Title, err)
		}
		fmt.Fprintf(out, "created role %s %q\n", created.ID, r.Title)
	}
	return nil
}
