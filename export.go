package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitwall-dev/apexdata/internal/dataapi"
)

// errNoChunkDescriptor is returned when an export target does not carry a
// chunked dataset.
var errNoChunkDescriptor = errors.New("response carries no chunk descriptor; use 'apexdata get' for plain endpoints")

func newExportCmd() *cobra.Command {
	var (
		params    []string
		allChunks bool
	)

	cmd := &cobra.Command{
		Use:   "export <endpoint>",
		Short: "Download a chunked bulk dataset",
		Long: "Fetches an endpoint whose response describes a chunked dataset and downloads " +
			"the chunk files, printing the decoded records as a JSON array. By default only " +
			"the first chunk is fetched; --all-chunks downloads and reassembles every chunk.\n\n" +
			"Example:\n  apexdata export /data/results/season_results --param season_id=4603 --all-chunks",
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

			desc, ok := chunkDescriptorFrom(payload)
			if !ok {
				return errNoChunkDescriptor
			}

			var records []json.RawMessage
			if allChunks {
				records, err = client.DownloadAllChunks(cmd.Context(), desc)
			} else {
				records, err = client.DownloadChunks(cmd.Context(), desc)
			}

			if err != nil {
				return err
			}

			out, err := json.Marshal(records)
			if err != nil {
				return fmt.Errorf("encoding records: %w", err)
			}

			return printJSON(out)
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&allChunks, "all-chunks", false, "download and reassemble every chunk")

	// Config may flip the default; the flag still wins when set.
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if !cmd.Flags().Changed("all-chunks") {
			allChunks = resolvedCfg.Download.AllChunks
		}
	}

	return cmd
}

// chunkDescriptorFrom extracts a chunk descriptor from an endpoint
// payload. The descriptor lives under data.chunk_info on the endpoints
// that paginate this way, with a top-level chunk_info fallback.
func chunkDescriptorFrom(payload []byte) (dataapi.ChunkDescriptor, bool) {
	var envelope struct {
		ChunkInfo *dataapi.ChunkDescriptor `json:"chunk_info"`
		Data      struct {
			ChunkInfo *dataapi.ChunkDescriptor `json:"chunk_info"`
		} `json:"data"`
	}

	if err := json.Unmarshal(payload, &envelope); err != nil {
		return dataapi.ChunkDescriptor{}, false
	}

	desc := envelope.Data.ChunkInfo
	if desc == nil {
		desc = envelope.ChunkInfo
	}

	if desc == nil || desc.BaseDownloadURL == "" || len(desc.ChunkFileNames) == 0 {
		return dataapi.ChunkDescriptor{}, false
	}

	return *desc, true
}
