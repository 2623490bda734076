package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/config"
	"github.com/adamancini/hotpush/internal/templates"
)

func newInitCmd() *cobra.Command {
	var templateName string
	var outputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a hotpush config file from a template",
		Long: `Create a hotpush config file from a built-in or custom template.

Available templates:
  minimal    - Required settings only
  staging    - Install on resume, retry failed releases, debug logging
  full       - Every option with its default

Examples:
  hotpush init                              # Interactive mode
  hotpush init --template=minimal           # Direct template selection
  hotpush init --template=https://...       # Custom template URL
  hotpush init --file ./hotpush.yaml        # Custom output location`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), templateName, outputPath, force)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name or URL")
	cmd.Flags().StringVar(&outputPath, "file", "", "Output path for the config file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, tmpl := range templates.All() {
			completions = append(completions, fmt.Sprintf("%s\t%s", tmpl.Name, tmpl.Description))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit executes the init workflow.
func runInit(stdin io.Reader, stdout, stderr io.Writer, templateName, outputPath string, force bool) error {
	reader := bufio.NewReader(stdin)

	promptForPath := outputPath == ""
	if outputPath == "" {
		outputPath = defaultConfigPath()
	}
	outputPath = expandHomePath(outputPath)

	if _, err := os.Stat(outputPath); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Config file already exists at %s\n", outputPath)
		_, _ = fmt.Fprintf(stdout, "Overwrite? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	if templateName == "" {
		selected, err := selectTemplateInteractive(reader, stdout)
		if err != nil {
			return err
		}
		templateName = selected
	}

	var raw []byte
	custom := strings.HasPrefix(templateName, "http://") || strings.HasPrefix(templateName, "https://")
	if custom {
		var err error
		raw, err = fetchRemoteTemplate(templateName)
		if err != nil {
			return fmt.Errorf("failed to fetch template: %w", err)
		}
	} else {
		tmpl, err := templates.Get(templateName)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		raw = tmpl.Content
	}
	content := config.ExpandEnv(raw)

	if err := validateTemplateContent(content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	if !custom && !quiet {
		_, _ = fmt.Fprintf(stdout, "\nPreview of '%s' template:\n", templateName)
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
		lines := strings.Split(string(content), "\n")
		const maxLines = 20
		if len(lines) <= maxLines {
			_, _ = fmt.Fprintln(stdout, string(content))
		} else {
			for _, line := range lines[:maxLines] {
				_, _ = fmt.Fprintln(stdout, line)
			}
			_, _ = fmt.Fprintf(stdout, "... (%d more lines)\n", len(lines)-maxLines)
		}
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
		if refs := config.EnvReferences(raw); len(refs) > 0 {
			_, _ = fmt.Fprintf(stdout, "Expanded from: %s\n", strings.Join(refs, ", "))
		}
	}

	if promptForPath && !quiet {
		_, _ = fmt.Fprintf(stdout, "\nWhere should I create the config file? [%s]: ", outputPath)
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if answer = strings.TrimSpace(answer); answer != "" {
			outputPath = expandHomePath(answer)
		}
	}

	parentDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parentDir, err)
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", outputPath)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  1. Set appVersion and deploymentKey")
	_, _ = fmt.Fprintln(stdout, "  2. Run 'hotpush check' to query the update server")
	_, _ = fmt.Fprintln(stdout, "  3. Run 'hotpush sync' to install the latest release")

	return nil
}

// selectTemplateInteractive shows a numbered menu of templates.
func selectTemplateInteractive(reader *bufio.Reader, stdout io.Writer) (string, error) {
	templateList := templates.All()

	_, _ = fmt.Fprintln(stdout, "\nSelect a config template:")
	for i, tmpl := range templateList {
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, tmpl.Name, tmpl.Description)
	}
	_, _ = fmt.Fprintf(stdout, "  %d. %-12s - Provide custom template URL\n", len(templateList)+1, "custom")
	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", len(templateList)+1)

	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	answer = strings.TrimSpace(answer)

	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(templateList)+1 {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}

	if num == len(templateList)+1 {
		_, _ = fmt.Fprint(stdout, "Enter template URL: ")
		url, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read URL: %w", err)
		}
		return strings.TrimSpace(url), nil
	}

	return templateList[num-1].Name, nil
}

// fetchRemoteTemplate downloads a template from a URL.
func fetchRemoteTemplate(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return content, nil
}

// validateTemplateContent checks that content loads as a hotpush config.
func validateTemplateContent(content []byte) error {
	tmpFile, err := os.CreateTemp("", "hotpush-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	_, err = config.Load(tmpName)
	return err
}

// defaultConfigPath returns $XDG_CONFIG_HOME/hotpush/hotpush.yaml.
func defaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hotpush", "hotpush.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "hotpush.yaml"
	}
	return filepath.Join(home, ".config", "hotpush", "hotpush.yaml")
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
