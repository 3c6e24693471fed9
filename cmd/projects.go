package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/identity"
)

var exportOut string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "保存した作品を管理するのだ。",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "サインイン中の利用者の作品を新しい順に表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: withSignedIn(func(cmd *cobra.Command, appCtx *builder.AppContext, user domain.User, args []string) error {
		projects, err := appCtx.Store.ListProjects(cmd.Context(), user.ID)
		if err != nil {
			return err
		}
		renderProjects(cmd.OutOrStdout(), projects)
		return nil
	}),
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "作品を削除するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: withSignedIn(func(cmd *cobra.Command, appCtx *builder.AppContext, user domain.User, args []string) error {
		if _, err := ownedProject(cmd, appCtx, user, args[0]); err != nil {
			return err
		}
		if err := appCtx.Store.DeleteProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "削除したのだ: %s\n", args[0])
		return nil
	}),
}

var projectsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "作品を PDF に書き出すのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: withSignedIn(func(cmd *cobra.Command, appCtx *builder.AppContext, user domain.User, args []string) error {
		p, err := ownedProject(cmd, appCtx, user, args[0])
		if err != nil {
			return err
		}
		if err := writePDF(cmd.Context(), exportOut, p.CoverImageURL, p.ComicPages); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "書き出したのだ: %s\n", exportOut)
		return nil
	}),
}

func init() {
	projectsExportCmd.Flags().StringVarP(&exportOut, "out", "o", config.DefaultPDFFile, "PDF の書き出し先なのだ。")
	projectsCmd.AddCommand(projectsListCmd, projectsDeleteCmd, projectsExportCmd)
}

// withSignedIn はサインイン中の利用者を復元してからコマンドを実行するのだ。
func withSignedIn(fn func(*cobra.Command, *builder.AppContext, domain.User, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		user, err := currentUser(cmd.Context(), appCtx.Identity)
		if err != nil {
			return fmt.Errorf("先に login してほしいのだ: %w", err)
		}
		if user == nil {
			return fmt.Errorf("先に login してほしいのだ: %w", identity.ErrNotSignedIn)
		}
		return fn(cmd, appCtx, *user, args)
	}
}

// ownedProject は他人の作品を存在しないものとして扱うのだ。
func ownedProject(cmd *cobra.Command, appCtx *builder.AppContext, user domain.User, id string) (domain.Project, error) {
	p, err := appCtx.Store.GetProject(cmd.Context(), id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.UserID != user.ID {
		return domain.Project{}, fmt.Errorf("作品が見つからないのだ: %s", id)
	}
	return p, nil
}

func renderProjects(w io.Writer, projects []domain.Project) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Title", "Style", "Pages", "Panels", "Created"})
	for _, p := range projects {
		t.AppendRow(table.Row{
			p.ID,
			p.Title,
			p.ArtStyle.Name,
			len(p.ComicPages),
			p.ComicPages.PanelCount(),
			p.CreatedAt.Local().Format(time.DateTime),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(projects)})
	t.Render()
}
