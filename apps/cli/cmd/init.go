package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitseq project",
	Long: `Initialize a new hitseq project in the current directory.

This creates:
  - hitseq.yaml   - Configuration file
  - grammar.yaml  - Example request sequence
  - dict.yaml     - Example dictionary of custom payloads

Examples:
  hitseq init
  hitseq init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleGrammar = `# Create a store, then place an order against the id the API returned.
variables:
  - store_id

requests:
  - endpoint: /stores
    method: POST
    fragments:
      - static: "POST "
      - basepath: /api
      - static: "/stores HTTP/1.1\r\n"
      - static: "Host: localhost:8888\r\n"
      - static: "Content-Type: application/json\r\n"
      - auth: default
      - static: "\r\n"
      - static: '{"name":'
      - fuzzable: {kind: string, seed: corner-shop, quoted: true}
      - static: "}"
    post_send:
      rules:
        - variable: store_id
          path: /id

  - endpoint: /stores/{storeId}/order
    method: POST
    fragments:
      - static: "POST "
      - basepath: /api
      - static: "/stores/"
      - dynamic: {variable: store_id}
      - static: "/order HTTP/1.1\r\n"
      - static: "Host: localhost:8888\r\n"
      - static: "Content-Type: application/json\r\n"
      - auth: default
      - static: "\r\n"
      - static: '{"rush":'
      - fuzzable: {kind: bool, seed: true}
      - static: ',"tags":'
      - custom_payload: {path: /order/tags}
      - static: "}"
`

const exampleDictionary = `custom_payload:
  /order/tags:
    - ["fragile", "cold"]
fuzzable_string:
  - corner-shop
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "hitseq.yaml")
	grammarFile := filepath.Join(cwd, "grammar.yaml")
	dictFile := filepath.Join(cwd, "dict.yaml")

	if !forceInit {
		for _, f := range []string{configFile, grammarFile, dictFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	configContent := map[string]any{
		"target":        "http://localhost:8888",
		"timeout":       "30s",
		"dictionary":    "dict.yaml",
		"status_policy": "2xx",
		"headers": map[string]string{
			"User-Agent": "hitseq/1.0",
		},
		"auth": map[string]any{
			"header":           "Authorization",
			"command":          "echo 'Authorization: Bearer dev-token'",
			"refresh_interval": "5m",
		},
	}

	configYAML, err := yaml.Marshal(configContent)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	files := []struct {
		path    string
		content []byte
	}{
		{configFile, configYAML},
		{grammarFile, []byte(exampleGrammar)},
		{dictFile, []byte(exampleDictionary)},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.content, 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Base(f.path), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", f.path)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitseq project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitseq render grammar.yaml' to preview the requests, then 'hitseq run grammar.yaml'.\n")

	return nil
}
