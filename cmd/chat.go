package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/stage"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Short:   "漫画づくりのアシスタントと会話するのだ。",
	Long:    `1行ずつ送信するのだ。空行は無視し、"exit" か EOF で終了するのだよ。`,
	Args:    cobra.NoArgs,
	PreRunE: preRunAppE,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer appCtx.Close()
		return chatLoop(cmd.Context(), appCtx.Chat, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// chatLoop は1つの会話セッションで入力を順に送ります。送信の失敗は表示して続けるのだ。
func chatLoop(ctx context.Context, chat stage.Chatter, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		msg := strings.TrimSpace(sc.Text())
		switch msg {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := chat.Send(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, err)
			continue
		}
		fmt.Fprintf(out, "assistant> %s\n", reply)
	}
}
