package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/stationrec/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "stationrec",
	Short: "stationrec captures UDP packet streams to disk",
	Long: `stationrec ingests fixed- or variable-length UDP datagrams — principally
LOFAR-class beamformed packets — from one or more ports, or standard
input, and writes them to disk through a bounded ring buffer, with
optional compression, file splitting on size or time, and per-port
loss accounting.`,
	RunE:         runCapture,
	SilenceUsage: true,
}

// Execute runs the root command, exiting 1 on any returned error
// (setup failure or fatal runtime error, per the error handling
// design) and 0 on a clean shutdown.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringP("ports", "p", "0", `UDP ports to listen on, comma-separated (e.g. "16011,16012"), or "0" to read standard input`)
	flags.StringP("out", "o", "capture", `output filename base; "/dev/null" is used verbatim`)
	flags.IntP("len", "l", 0, "fixed packet length in bytes, 0 = accept any size")
	flags.BoolP("sizehead", "s", false, "prepend a 2-byte little-endian length to each stored record")
	flags.BoolP("check", "c", false, "enable LOFAR header checks (forces --len 7824)")
	flags.IntP("timeout", "t", 10, "idle timeout in seconds")
	flags.StringP("Start", "S", "", `recording start time: ISO "YYYY-MM-DDTHH:MM:SS" or unix seconds`)
	flags.StringP("End", "E", "", "recording end time, same grammar as --Start; mutually exclusive with --duration")
	flags.IntP("duration", "d", 0, "recording duration in seconds; mutually exclusive with --End")
	flags.Int64P("Maxfilesize", "M", 0, "split threshold in bytes; negative reports only combined (not per-split) statistics")
	flags.Int64P("bufsize", "b", 64<<20, "ring buffer capacity in bytes (1e4..1.6e10)")
	flags.IntP("maxwrite", "m", 1<<20, "consumer write chunk upper bound in bytes (>1024)")
	flags.BoolP("compress", "z", false, "pipe output through a compressor")
	flags.StringP("compcommand", "Z", "", `compressor command, must contain "%s" for the output filename; "internal:zstd"/"internal:snappy"/"internal:lz4" select an in-process codec instead of a subprocess`)
	flags.StringP("path", "P", "", "PATH override used to locate the external compressor subprocess")
	flags.BoolP("verbose", "v", false, "additional startup logging")

	flags.String("config", "", "YAML config file; keys mirror the flag names above")
	flags.String("metrics-addr", "", "if set, serve Prometheus metrics at this host:port")
	flags.String("archive-bucket", "", "if set (with the other --archive-* flags), upload closed files to this S3-compatible bucket")
	flags.String("archive-endpoint", "", "custom S3-compatible endpoint (e.g. MinIO)")
	flags.String("archive-region", "us-east-1", "S3 region for archival upload")
	flags.String("archive-prefix", "", "S3 key prefix for archival upload")
	flags.String("log-level", "info", "zerolog level: debug, info, warn, error")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

// initConfig reads the optional --config YAML file through
// config.SubstituteEnvVars before handing it to viper, so
// "${VAR}"/"${VAR:-default}" references resolve the same way whether
// the file is loaded standalone (config.Load, used by its own tests)
// or through the CLI.
func initConfig() {
	path := viper.GetString("config")
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stationrec: config file error:", err)
		os.Exit(1)
	}
	substituted := config.SubstituteEnvVars(string(raw))

	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(bytes.NewReader([]byte(substituted))); err != nil {
		fmt.Fprintln(os.Stderr, "stationrec: config file error:", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "stationrec: using config file:", path)
}
