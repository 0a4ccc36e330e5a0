package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chatmate/chatmate/internal/tools/access_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
		readOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
The reference is built from the tool definitions themselves, so it always
matches what serve registers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd, outputFile, readOnly)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Document only the tools available with --read-only")

	return cmd
}

func runGenerateDocs(cmd *cobra.Command, outputFile string, readOnly bool) error {
	markdown := generateToolsMarkdown(access_tools.Tools(readOnly))

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), markdown)
	return nil
}

// toolCategories lists the documented sections in output order.
var toolCategories = []string{"Access Tools", "Group Tools", "Other"}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools registered by `chatmate serve`. Generated from the tool definitions by `chatmate generate-docs`.\n\n")

	sb.WriteString("## Owner Scoping\n\n")
	sb.WriteString("Tools that read or change an access configuration take a required `owner` argument naming the owner's username.\n\n")
	sb.WriteString("- **Read-only mode:** `serve --read-only` registers only the tools marked read-only below\n")
	sb.WriteString("- **Batches:** a `username` argument given as an array is applied one user at a time; the result is a per-user summary\n")
	sb.WriteString("- **Errors:** failures are reported as `Kind: message`, for example `NotFound: owner olivia not found`\n\n")

	for _, category := range toolCategories {
		categoryTools := byCategory[category]
		if len(categoryTools) == 0 {
			continue
		}
		slices.SortFunc(categoryTools, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
		}
	}
	return sb.String()
}

func getCategoryFromToolName(name string) string {
	switch {
	case strings.HasSuffix(name, "_group"), strings.HasSuffix(name, "_group_member"):
		return "Group Tools"
	case strings.HasPrefix(name, "access_"):
		return "Access Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}
	fmt.Fprintf(&sb, "_%s_\n\n", toolHint(tool.Annotations))

	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("| Argument | Type | Required | Description |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, name := range slices.Sorted(maps.Keys(tool.InputSchema.Properties)) {
			prop, _ := tool.InputSchema.Properties[name].(map[string]any)
			required := "no"
			if slices.Contains(tool.InputSchema.Required, name) {
				required = "yes"
			}
			desc, _ := prop["description"].(string)
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", name, getPropertyType(prop), required, desc)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func toolHint(a mcp.ToolAnnotation) string {
	if a.ReadOnlyHint != nil && *a.ReadOnlyHint {
		return "Read-only."
	}
	return "Changes access configuration; not registered with --read-only."
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
