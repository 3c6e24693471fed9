package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/identity"
)

var (
	loginName   string
	loginAvatar string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "表示名でサインインするのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		user, _, err := appCtx.Identity.SignIn(cmd.Context(), loginName, loginAvatar)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s としてサインインしたのだ (id: %s)\n", user.DisplayName, user.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "サインアウトするのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		if err := appCtx.Identity.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "サインアウトしたのだ")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "サインイン中の利用者を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		user, err := currentUser(cmd.Context(), appCtx.Identity)
		if err != nil {
			return err
		}
		if user == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "サインインしていないのだ")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (id: %s)\n", user.DisplayName, user.ID)
		return nil
	},
}

// currentUser は利用者の流れを購読したままセッションを復元し、届いた最新の値を返します。
// サインインしていなければ nil なのだ。
func currentUser(ctx context.Context, id *identity.Manager) (*domain.User, error) {
	if u := id.Current(); u != nil {
		return u, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users := id.Watch(ctx)
	if _, err := id.Restore(ctx); err != nil && !errors.Is(err, identity.ErrNotSignedIn) {
		return nil, err
	}
	return <-users, nil
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "表示名なのだ。")
	loginCmd.Flags().StringVar(&loginAvatar, "avatar", "", "アバター画像の URL なのだ。")
	_ = loginCmd.MarkFlagRequired("name")
}
