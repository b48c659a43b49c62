package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loykin/gridnode/internal/version"
	"github.com/loykin/gridnode/pkg/client"
	"github.com/spf13/cobra"
)

func newQueryClient(flags *QueryFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	cfg.Insecure = flags.Insecure
	return client.New(cfg)
}

func addQueryFlags(cmd *cobra.Command, flags *QueryFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "node management endpoint (default http://localhost:8787)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
}

func ownVersion() version.Report {
	return version.Get([]string{"github.com/loykin/gridnode"})
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
