package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luispater/matroska-demux/internal/cli"
)

var version = "dev"

var opts cli.Options

var rootCmd = &cobra.Command{
	Use:           "mkvdemux",
	Short:         "Inspect and demux Matroska files.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var infoCmd = &cobra.Command{
	Use:   "info <file> [file...]",
	Short: "Print segment and track information",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			d, closeFn, err := cli.OpenFile(path, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			err = cli.WriteInfo(cmd.OutOrStdout(), filepath.Base(path), d)
			closeFn()
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var packetLimit int

var packetsCmd = &cobra.Command{
	Use:   "packets <file>",
	Short: "List packets in file order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeFn, err := cli.OpenFile(args[0], opts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeFn()
		_, err = cli.ListPackets(cmd.OutOrStdout(), d, packetLimit)
		return err
	},
}

var outputDir string

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Write each active track to its own file",
	Long: "Write each active track to its own file. AVC video becomes an Annex-B\n" +
		"stream, text subtitles become SRT and other tracks are written raw.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeFn, err := cli.OpenFile(args[0], opts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeFn()

		dir := outputDir
		if dir == "" {
			dir = filepath.Dir(args[0])
		}
		base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		counts, err := cli.Extract(d, dir, base)
		if err != nil {
			return err
		}

		indexes := make([]int, 0, len(counts))
		for i := range counts {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			fmt.Fprintf(cmd.OutOrStdout(), "track %d: %d packets\n", i, counts[i])
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print mkvdemux version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "mkvdemux %s\n", resolveVersion())
		return nil
	},
	DisableFlagsInUseLine: true,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: disabled, error, warn, info, debug or trace")
	rootCmd.PersistentFlags().BoolVar(&opts.Streaming, "stream", false, "read the input as a non-seekable stream")
	rootCmd.PersistentFlags().BoolVar(&opts.NoThumb, "no-thumbnail", false, "skip the thumbnail keyframe scan")
	packetsCmd.Flags().IntVarP(&packetLimit, "limit", "n", 0, "stop after this many packets")
	extractCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: next to the input)")
	rootCmd.AddCommand(infoCmd, packetsCmd, extractCmd, versionCmd)
}

func resolveVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
