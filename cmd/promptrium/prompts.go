package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/thebtf/promptrium/internal/validation"
	"github.com/thebtf/promptrium/internal/view"
	"github.com/thebtf/promptrium/pkg/models"
)

var (
	listQuery     string
	listTags      []string
	listFavorites bool
	listSort      string
	listOrder     string
	listJSON      bool

	addTitle       string
	addContent     string
	addDescription string
	addTags        []string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts",
	Long: `List prompts, optionally filtered and sorted.

The query matches title, content, description and tags, ignoring case.
Every --tag must be present on a prompt for it to match.

Examples:
  promptrium list
  promptrium list --query review --tag code
  promptrium list --favorites --sort usage
  promptrium list --sort name --order asc --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		prompts := view.Derive(a.svc.Prompts(), view.Criteria{
			Query:         listQuery,
			Tags:          listTags,
			FavoritesOnly: listFavorites,
			SortBy:        view.ParseSortKey(listSort),
			Order:         view.ParseOrder(listOrder),
		})

		out := cmd.OutOrStdout()
		if listJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(prompts)
		}
		renderPrompts(out, prompts)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a prompt",
	Long: `Add a prompt to the library.

Use --content - to read the content from stdin.

Examples:
  promptrium add --title "Code review" --content "Review this diff..." --tag code
  git diff | promptrium add --title "Explain diff" --content -`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content := addContent
		if content == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read content: %w", err)
			}
			content = string(data)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.svc.AddPrompt(cmd.Context(), models.FormData{
			Title:       addTitle,
			Content:     content,
			Description: addDescription,
			Tags:        addTags,
		})
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <id>",
	Short: "Copy a prompt to the clipboard",
	Long: `Copy the content of a prompt to the clipboard and count the use.

The desktop clipboard is tried first. When it is unreachable, for example
over SSH, an OSC 52 escape sequence asks the terminal to set the clipboard
instead (disable with PROMPTRIUM_CLIPBOARD_OSC52=false in settings.json).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		copied, err := a.svc.CopyPrompt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if copied {
			fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard!")
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.svc.DeletePrompt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("prompt %s not found", args[0])
		}
		return nil
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle the favorite flag of a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.svc.ToggleFavorite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s favorite=%t\n", p.ID, p.IsFavorite)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Search text")
	listCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "Required tag (repeatable)")
	listCmd.Flags().BoolVarP(&listFavorites, "favorites", "f", false, "Only favorites")
	listCmd.Flags().StringVar(&listSort, "sort", "updated", "Sort by: updated, created, name or usage")
	listCmd.Flags().StringVar(&listOrder, "order", "desc", "Sort order: asc or desc")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")

	addCmd.Flags().StringVar(&addTitle, "title", "", "Prompt title")
	addCmd.Flags().StringVar(&addContent, "content", "", "Prompt content, or - for stdin")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Optional description")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "Tag (repeatable)")
	_ = addCmd.MarkFlagRequired("title")
	_ = addCmd.MarkFlagRequired("content")

	rootCmd.AddCommand(listCmd, addCmd, copyCmd, deleteCmd, favoriteCmd)
}

// renderPrompts prints prompts as a table.
func renderPrompts(out io.Writer, prompts []models.Prompt) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Title", "Tags", "Uses", "Fav", "Updated"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, p := range prompts {
		fav := ""
		if p.IsFavorite {
			fav = "*"
		}
		table.Append([]string{
			p.ID,
			truncate(p.Title, 40),
			strings.Join(p.Tags, ", "),
			strconv.Itoa(p.UsageCount),
			fav,
			time.UnixMilli(p.UpdatedAt).Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// describeError expands validation failures into one line per field.
func describeError(err error) error {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return err
	}
	var b strings.Builder
	b.WriteString("invalid prompt:")
	for _, fe := range verr.Errors {
		b.WriteString("\n  - ")
		b.WriteString(fe.Message)
	}
	return errors.New(b.String())
}
