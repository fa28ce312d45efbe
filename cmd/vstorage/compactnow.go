package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/engine"
)

func compactNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact-now",
		Short: "Run a single compaction cycle against the configured data directory and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defaultCompression, err := codec.ParseCompression(cfg.DefaultCompression)
			if err != nil {
				return errors.Wrap(err, "vstorage compact-now")
			}
			eng, err := engine.Open(engine.Config{
				DataDir:                   cfg.DataDir,
				SlabCapacity:              cfg.SlabCapacity,
				CompactLiveRatioThreshold: cfg.CompactLiveRatioThreshold,
				CompactMinAge:             cfg.CompactMinAge(),
				VerifyOnRead:              cfg.VerifyOnRead,
				DefaultCompression:        defaultCompression,
			})
			if err != nil {
				return errors.Wrap(err, "vstorage compact-now: open engine")
			}
			before := eng.Stats()
			eng.CompactNow()
			after := eng.Stats()
			if err := eng.Close(); err != nil {
				return errors.Wrap(err, "vstorage compact-now: close engine")
			}
			fmt.Printf("avail_bytes: %d -> %d\n", before.AvailBytes, after.AvailBytes)
			fmt.Printf("move_bytes:  %d -> %d\n", before.MoveBytes, after.MoveBytes)
			return nil
		},
	}
}
