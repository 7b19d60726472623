package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// options is the fully parsed, validated form of the CLI flags /
// config file (spec.md §6), resolved through viper so flags always
// take precedence over the config file, which takes precedence over
// the flag defaults registered in root.go.
type options struct {
	stdinMode bool
	ports     []int

	out      string
	packLen  int
	sizeHead bool
	check    bool
	timeout  time.Duration

	start    time.Time
	end      time.Time
	duration time.Duration

	maxFileSize int64
	bufSize     int64
	maxWrite    int

	compress    bool
	compCommand string
	pathOverride string
	verbose     bool

	metricsAddr     string
	archiveBucket   string
	archiveEndpoint string
	archiveRegion   string
	archivePrefix   string
	logLevel        string
}

func parseOptions(v *viper.Viper) (*options, error) {
	o := &options{
		out:          v.GetString("out"),
		packLen:      v.GetInt("len"),
		sizeHead:     v.GetBool("sizehead"),
		check:        v.GetBool("check"),
		timeout:      time.Duration(v.GetInt("timeout")) * time.Second,
		duration:     time.Duration(v.GetInt("duration")) * time.Second,
		maxFileSize:  v.GetInt64("Maxfilesize"),
		bufSize:      v.GetInt64("bufsize"),
		maxWrite:     v.GetInt("maxwrite"),
		compress:     v.GetBool("compress"),
		compCommand:  v.GetString("compcommand"),
		pathOverride: v.GetString("path"),
		verbose:      v.GetBool("verbose"),

		metricsAddr:     v.GetString("metrics-addr"),
		archiveBucket:   v.GetString("archive-bucket"),
		archiveEndpoint: v.GetString("archive-endpoint"),
		archiveRegion:   v.GetString("archive-region"),
		archivePrefix:   v.GetString("archive-prefix"),
		logLevel:        v.GetString("log-level"),
	}

	if o.check {
		o.packLen = 7824
	}

	ports, stdin, err := parsePorts(v.GetString("ports"))
	if err != nil {
		return nil, err
	}
	o.ports, o.stdinMode = ports, stdin

	if o.stdinMode && o.packLen <= 0 {
		return nil, fmt.Errorf("--ports 0 (stdin mode) requires --len > 0")
	}
	if o.bufSize < 10_000 || o.bufSize > 16_000_000_000 {
		return nil, fmt.Errorf("--bufsize %d out of range [1e4, 1.6e10]", o.bufSize)
	}
	if o.maxWrite <= 1024 {
		return nil, fmt.Errorf("--maxwrite %d must be > 1024", o.maxWrite)
	}

	endFlag := v.GetString("End")
	durationFlag := v.GetInt("duration")
	if endFlag != "" && durationFlag != 0 {
		return nil, fmt.Errorf("--End and --duration are mutually exclusive")
	}

	if s := v.GetString("Start"); s != "" {
		t, err := parseTimeSpec(s)
		if err != nil {
			return nil, fmt.Errorf("--Start: %w", err)
		}
		o.start = t
	}
	if endFlag != "" {
		t, err := parseTimeSpec(endFlag)
		if err != nil {
			return nil, fmt.Errorf("--End: %w", err)
		}
		o.end = t
	}

	if o.compCommand != "" && !o.compress {
		o.compress = true
	}
	if o.compress && o.compCommand == "" {
		o.compCommand = "internal:zstd"
	}
	if o.compress && !strings.HasPrefix(o.compCommand, "internal:") && !strings.Contains(o.compCommand, "%s") {
		return nil, fmt.Errorf("--compcommand %q must contain %%s for the filename", o.compCommand)
	}

	return o, nil
}

// parsePorts accepts a comma-separated port list, "0" for stdin mode,
// or the "NxK" shorthand for N consecutive ports starting at K.
func parsePorts(spec string) (ports []int, stdinMode bool, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "0" {
		return nil, true, nil
	}
	if idx := strings.IndexByte(spec, 'x'); idx > 0 {
		count, err1 := strconv.Atoi(spec[:idx])
		start, err2 := strconv.Atoi(spec[idx+1:])
		if err1 == nil && err2 == nil && count > 0 {
			ports = make([]int, count)
			for i := 0; i < count; i++ {
				ports[i] = start + i
			}
			return ports, false, nil
		}
	}
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, false, fmt.Errorf("--ports: invalid port %q: %w", field, err)
		}
		ports = append(ports, n)
	}
	if len(ports) == 0 {
		return nil, false, fmt.Errorf("--ports: no ports given")
	}
	return ports, false, nil
}

// parseTimeSpec accepts either an ISO "YYYY-MM-DDTHH:MM:SS" timestamp
// (UTC) or a bare unix-seconds integer.
func parseTimeSpec(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want ISO YYYY-MM-DDTHH:MM:SS or unix seconds)", s)
	}
	return t.UTC(), nil
}

func (o *options) portList() string {
	if o.stdinMode {
		return "0"
	}
	strs := make([]string, len(o.ports))
	for i, p := range o.ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, "-")
}
