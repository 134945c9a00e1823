package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "get <endpoint>",
		Short: "Fetch a single API endpoint",
		Long: "Fetches an API endpoint and prints the JSON payload. Link indirection is " +
			"followed transparently, so the printed payload is the final document.\n\n" +
			"Example:\n  apexdata get /data/series/seasons --param season_year=2026",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}

			logger := buildLogger()
			client := newAPIClient(logger)
			defer persistToken(client, logger)

			payload, err := client.Get(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}

			return printJSON(payload)
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as key=value (repeatable)")

	return cmd
}

// parseParams converts repeated key=value flag values into url.Values.
// A key may repeat to send multiple values.
func parseParams(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	values := url.Values{}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}

		values.Add(key, value)
	}

	return values, nil
}

// printJSON writes a payload to stdout, indented for humans unless --json
// asks for the compact wire form.
func printJSON(payload []byte) error {
	if flagJSON {
		fmt.Println(string(payload))

		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		// Not valid JSON, print it as-is rather than hiding it.
		fmt.Println(string(payload))

		return nil
	}

	fmt.Println(out.String())

	return nil
}
