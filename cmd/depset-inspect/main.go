// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// depset-inspect dumps the structure of a serialized nested-set blob:
// frame count, order, and a per-frame breakdown of digests, kinds, and
// entries. Blobs come from a raw file (--file) or from a setstore root
// (--store with --hash).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/depset/lib/depset"
	"github.com/bureau-foundation/depset/lib/setstore"
	"github.com/bureau-foundation/depset/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var filePath string
	var storePath string
	var hashString string
	var verify bool
	var payloads bool
	var verbose bool

	flagSet := pflag.NewFlagSet("depset-inspect", pflag.ContinueOnError)
	flagSet.StringVar(&filePath, "file", "", "path to a raw serialized blob")
	flagSet.StringVar(&storePath, "store", "", "setstore root to read from (requires --hash)")
	flagSet.StringVar(&hashString, "hash", "", "hex blob hash within --store")
	flagSet.BoolVar(&verify, "verify", false, "recompute each frame's digest and compare against the declared one")
	flagSet.BoolVar(&payloads, "payloads", false, "print payload contents (text shown as strings, binary as hex)")
	flagSet.BoolVar(&verbose, "verbose", false, "log details to stderr")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("depset-inspect %s\n", version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	data, source, err := loadBlob(filePath, storePath, hashString)
	if err != nil {
		return err
	}
	logger.Info("loaded blob", "source", source, "bytes", len(data))

	info, err := depset.InspectEnvelope(data, verify)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", source, err)
	}

	printEnvelope(info, payloads)
	return nil
}

// loadBlob reads the blob named by the flags and returns it along with
// a human-readable source description for error messages.
func loadBlob(filePath, storePath, hashString string) ([]byte, string, error) {
	switch {
	case filePath != "" && storePath != "":
		return nil, "", fmt.Errorf("--file and --store are mutually exclusive")

	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("reading blob: %w", err)
		}
		return data, filePath, nil

	case storePath != "":
		if hashString == "" {
			return nil, "", fmt.Errorf("--store requires --hash")
		}
		hash, err := setstore.ParseHash(hashString)
		if err != nil {
			return nil, "", err
		}
		store, err := setstore.NewStore(storePath)
		if err != nil {
			return nil, "", err
		}
		data, err := store.Get(hash)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s in %s", hash, storePath), nil

	default:
		return nil, "", fmt.Errorf("one of --file or --store is required")
	}
}

func printEnvelope(info *depset.EnvelopeInfo, payloads bool) {
	fmt.Printf("envelope: %d frames, order %s\n", info.FrameCount, info.Order)

	for i, frame := range info.Frames {
		role := ""
		if i == len(info.Frames)-1 {
			role = " (root)"
		}

		switch frame.Kind {
		case depset.FrameEmpty:
			fmt.Printf("frame %d%s: %s empty\n", i, role, frame.Digest)

		case depset.FrameLeaf:
			fmt.Printf("frame %d%s: %s leaf, payload %d bytes%s\n",
				i, role, frame.Digest, len(frame.Payload), payloadSuffix(frame.Payload, payloads))

		case depset.FrameBranch:
			fmt.Printf("frame %d%s: %s branch, %d entries, body %d bytes\n",
				i, role, frame.Digest, len(frame.Entries), frame.BodySize)
			for j, entry := range frame.Entries {
				if entry.IsRef {
					fmt.Printf("  entry %d: ref %s\n", j, entry.Ref)
				} else {
					fmt.Printf("  entry %d: payload %d bytes%s\n",
						j, len(entry.Payload), payloadSuffix(entry.Payload, payloads))
				}
			}
		}
	}
}

// payloadSuffix formats payload bytes for display: printable UTF-8 as
// a quoted string, anything else as hex, both truncated past 64 bytes.
func payloadSuffix(payload []byte, enabled bool) string {
	if !enabled {
		return ""
	}

	const limit = 64
	truncated := ""
	if len(payload) > limit {
		payload = payload[:limit]
		truncated = "..."
	}

	if utf8.Valid(payload) && !strings.ContainsFunc(string(payload), isUnprintable) {
		return fmt.Sprintf(" %q%s", payload, truncated)
	}
	return fmt.Sprintf(" %x%s", payload, truncated)
}

func isUnprintable(r rune) bool {
	return r < 0x20 || r == 0x7f
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`depset-inspect — dump the structure of a serialized nested-set blob

Usage:
  depset-inspect --file <path> [flags]
  depset-inspect --store <root> --hash <hex> [flags]

Flags:
`)
	fmt.Print(flagSet.FlagUsages())
}
