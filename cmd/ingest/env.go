package main

import (
	"os"
	"strconv"

	"ingest/internal/config"
)

const (
	defaultConcurrency   = 4
	defaultChannelBuffer = 1024
	defaultBatchSize     = 10000
	defaultErrorSample   = 3
)

type runtimeKnobs struct {
	concurrency   int
	channelBuffer int
	batchSize     int
	errorSample   int
}

// runtimeOptions picks each knob from the load file, then the environment,
// then the default.
func runtimeOptions(r config.RuntimeConfig) runtimeKnobs {
	return runtimeKnobs{
		concurrency:   pickInt(r.Concurrency, getenvInt("INGEST_CONCURRENCY", defaultConcurrency)),
		channelBuffer: pickInt(r.ChannelBuffer, getenvInt("INGEST_CH_BUFFER", defaultChannelBuffer)),
		batchSize:     pickInt(r.BatchSize, getenvInt("INGEST_BATCH_SIZE", defaultBatchSize)),
		errorSample:   pickInt(r.ErrorSample, defaultErrorSample),
	}
}

// getenvInt reads an integer env var or returns def if unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
