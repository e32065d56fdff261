package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"keychain-agent/config"
	"keychain-agent/internal/app"
	"keychain-agent/internal/domain"
	"keychain-agent/internal/infra"
)

// runCmd は未処理リクエストを1回処理するコマンド。
// NoWork/Successは終了コード0、Failedまたはエラーは1で終了する。
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fulfill one page of pending key requests and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			infra.SetupLogger(cmd.ErrOrStderr(), cfg)

			a, err := app.New(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.Fulfillment.RunOnce(ctx)
			if outcome != nil {
				printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), outcome)
			}
			return err
		},
	}
}

// printOutcome は実行結果を出力する。Failedの場合は台帳のペイロードを常にstderrに出力する。
func printOutcome(stdout, stderr io.Writer, o *domain.RunOutcome) {
	if o.Kind == domain.RunOutcomeFailed {
		fmt.Fprintf(stderr, "Transaction %s failed:\n", o.TxHash)
		fmt.Fprintln(stderr, indentJSON(rawResult(o)))
	}

	if output == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(struct {
			Outcome   string          `json:"outcome"`
			TxHash    string          `json:"tx_hash,omitempty"`
			Fulfilled []uint64        `json:"fulfilled"`
			Result    json.RawMessage `json:"result,omitempty"`
		}{string(o.Kind), o.TxHash, o.Fulfilled, rawResult(o)})
		return
	}

	switch o.Kind {
	case domain.RunOutcomeNoWork:
		fmt.Fprintln(stdout, "No pending key requests.")
	case domain.RunOutcomeSuccess:
		ids := make([]string, len(o.Fulfilled))
		for i, id := range o.Fulfilled {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(stdout, "Fulfilled %d key request(s) [%s] in tx %s\n", len(ids), strings.Join(ids, ", "), o.TxHash)
	}
}

func rawResult(o *domain.RunOutcome) json.RawMessage {
	if o.Result == nil || len(o.Result.Raw) == 0 {
		return nil
	}
	return o.Result.Raw
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
