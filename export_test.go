package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDescriptorFrom_Nested(t *testing.T) {
	payload := []byte(`{
		"data": {
			"success": true,
			"chunk_info": {
				"base_download_url": "https://blobs.example.com/exports/",
				"chunk_file_names": ["a.json", "b.json"]
			}
		}
	}`)

	desc, ok := chunkDescriptorFrom(payload)
	require.True(t, ok)
	assert.Equal(t, "https://blobs.example.com/exports/", desc.BaseDownloadURL)
	assert.Equal(t, []string{"a.json", "b.json"}, desc.ChunkFileNames)
}

func TestChunkDescriptorFrom_TopLevel(t *testing.T) {
	payload := []byte(`{
		"chunk_info": {
			"base_download_url": "https://blobs.example.com/exports/",
			"chunk_file_names": ["a.json"]
		}
	}`)

	desc, ok := chunkDescriptorFrom(payload)
	require.True(t, ok)
	assert.Equal(t, []string{"a.json"}, desc.ChunkFileNames)
}

func TestChunkDescriptorFrom_Absent(t *testing.T) {
	for name, payload := range map[string]string{
		"plain object":   `{"season_year": 2026}`,
		"empty file set": `{"chunk_info": {"base_download_url": "https://x.example.com/", "chunk_file_names": []}}`,
		"missing base":   `{"chunk_info": {"chunk_file_names": ["a.json"]}}`,
		"array payload":  `[1, 2, 3]`,
		"not JSON":       `<html>`,
	} {
		_, ok := chunkDescriptorFrom([]byte(payload))
		assert.False(t, ok, name)
	}
}
