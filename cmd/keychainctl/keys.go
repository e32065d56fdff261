package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"keychain-agent/config"
	"keychain-agent/internal/app"
)

// keysCmd は生成済み鍵の参照コマンド。
func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect keys generated by the agent",
	}
	cmd.AddCommand(keysGetCmd())
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysExportCmd())
	return cmd
}

func fetch(url string) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set KEYCHAINCTL_API_URL)")
	}
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// keysGetCmd はリクエストIDに対応する公開鍵の取得コマンド。
func keysGetCmd() *cobra.Command {
	var requestID uint64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get the public key generated for a key request",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(fmt.Sprintf("%s/v1/keys/%d", apiURL, requestID))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result map[string]interface{}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result["public_key"])
			return nil
		},
	}
	cmd.Flags().Uint64Var(&requestID, "request-id", 0, "Key request ID (required)")
	cmd.MarkFlagRequired("request-id")
	return cmd
}

// keysListCmd は鍵一覧の取得コマンド。
func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys generated for this keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(apiURL + "/v1/keys")
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				Keys []struct {
					RequestID string `json:"request_id"`
					KeyType   string `json:"key_type"`
					CreatedAt string `json:"created_at"`
				} `json:"keys"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-28s %s\n", "REQUEST_ID", "KEY_TYPE", "CREATED_AT")
			for _, k := range result.Keys {
				fmt.Fprintf(out, "%-12s %-28s %s\n", k.RequestID, k.KeyType, k.CreatedAt)
			}
			return nil
		},
	}
}

// keysExportCmd は秘密鍵をKMSで復号して出力するコマンド。APIを経由せず鍵ストアに直接接続する。
func keysExportCmd() *cobra.Command {
	var requestID uint64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Decrypt and print the private key for a key request",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := app.OpenKeyStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			key, err := store.Service.GetPrivateKey(ctx, requestID)
			if err != nil {
				return fmt.Errorf("exporting key for request %s: %w", strconv.FormatUint(requestID, 10), err)
			}

			if output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"request_id":  strconv.FormatUint(key.RequestID, 10),
					"key_type":    string(key.KeyType),
					"private_key": hex.EncodeToString(key.Key),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key.Key))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&requestID, "request-id", 0, "Key request ID (required)")
	cmd.MarkFlagRequired("request-id")
	return cmd
}
