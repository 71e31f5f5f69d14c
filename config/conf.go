package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/ini.v1"
)

// headerTitleCaser canonicalizes header names to HTTP's conventional
// Title-Case form ("content-type" -> "Content-Type") regardless of how the
// caller spelled them on the command line.
var headerTitleCaser = cases.Title(language.Und)

// Config is the plain record of every recognised option (§6). It is
// populated by Parse: command-line flags win, then dezoomify.ini, then the
// package defaults.
type Config struct {
	InputURI string
	OutFile  string

	Dezoomer      string
	Largest       bool
	MaxWidth      int
	MaxHeight     int
	Parallelism   int
	Retries       int
	RetryDelay    time.Duration
	Timeout       time.Duration
	ConnTimeout   time.Duration
	MaxIdlePerHost int
	Headers       map[string]string
	AcceptInvalidCerts bool
	TileCacheDir  string
	Compression   int
	LoggingLevel  string
}

// headerFlag accumulates repeatable "-H, --header 'K: V'" flags, the way
// pflag models any repeatable string option (implements pflag.Value).
type headerFlag struct{ dst *map[string]string }

func (h headerFlag) String() string { return "" }
func (h headerFlag) Type() string   { return "stringArray" }
func (h headerFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("bad header %q, expected \"Key: Value\"", v)
	}
	if *h.dst == nil {
		*h.dst = make(map[string]string)
	}
	name := headerTitleCaser.String(strings.TrimSpace(k))
	(*h.dst)[name] = strings.TrimSpace(val)
	return nil
}

// Parse parses os.Args into a Config, applying the dezoomify.ini fallback
// for any flag left at its zero value (mirrors bookget's config/conf.go
// initINI/updateConfigFromINI two-tier resolution, generalised from an INI
// file plus flags to a flags-then-INI-then-builtin-default chain).
func Parse(args []string) (*Config, error) {
	iniDefaults := loadINIDefaults()

	fs := pflag.NewFlagSet("dezoomify", pflag.ContinueOnError)
	c := &Config{}

	fs.StringVarP(&c.Dezoomer, "dezoomer", "d", firstNonEmpty(iniDefaults.Dezoomer, defaultDezoomer), "force a specific dezoomer; default auto")
	fs.BoolVarP(&c.Largest, "largest", "l", iniDefaults.Largest, "pick the largest zoom level")
	fs.IntVarP(&c.MaxWidth, "max-width", "w", iniDefaults.MaxWidth, "cap zoom level selection by width")
	fs.IntVarP(&c.MaxHeight, "max-height", "h", iniDefaults.MaxHeight, "cap zoom level selection by height")
	fs.IntVarP(&c.Parallelism, "parallelism", "n", firstPositive(iniDefaults.Parallelism, defaultParallelism), "in-flight tile count")
	fs.IntVarP(&c.Retries, "retries", "r", firstPositive(iniDefaults.Retries, defaultRetries), "retry budget per tile")
	fs.DurationVar(&c.RetryDelay, "retry-delay", firstPositiveDur(iniDefaults.RetryDelay, defaultRetryDelay), "initial backoff, doubles each retry")
	fs.DurationVar(&c.Timeout, "timeout", firstPositiveDur(iniDefaults.Timeout, defaultTimeout), "end-to-end request timeout")
	fs.DurationVar(&c.ConnTimeout, "connect-timeout", firstPositiveDur(iniDefaults.ConnTimeout, defaultConnTimeout), "TCP connect timeout")
	fs.IntVar(&c.MaxIdlePerHost, "max-idle-per-host", firstPositive(iniDefaults.MaxIdlePerHost, defaultMaxIdleHost), "idle connection cap per host")
	fs.VarP(headerFlag{&c.Headers}, "header", "H", "repeatable request header \"Key: Value\"")
	fs.BoolVar(&c.AcceptInvalidCerts, "accept-invalid-certs", false, "skip TLS certificate verification")
	fs.StringVarP(&c.TileCacheDir, "tile-cache", "c", "", "enable an on-disk tile cache at this directory")
	fs.IntVar(&c.Compression, "compression", firstPositive(iniDefaults.Compression, defaultCompression), "encoder quality/effort knob, 0..100")
	fs.StringVar(&c.LoggingLevel, "logging", firstNonEmpty(iniDefaults.LoggingLevel, defaultLogLevel), "off|error|warn|info|debug|trace")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, fmt.Errorf("missing input URI")
	}
	c.InputURI = norm.NFC.String(rest[0])
	if len(rest) > 1 {
		c.OutFile = rest[1]
	}
	if c.Compression < 0 || c.Compression > 100 {
		return nil, fmt.Errorf("--compression must be between 0 and 100")
	}
	return c, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstPositive(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func firstPositiveDur(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}

// iniDefaults mirrors a subset of Config. loadINIDefaults fills only the
// [download] and [output] keys; Dezoomer, Largest, MaxWidth and MaxHeight
// are not read from the file and stay zero.
type iniDefaults struct {
	Dezoomer       string
	Largest        bool
	MaxWidth       int
	MaxHeight      int
	Parallelism    int
	Retries        int
	RetryDelay     time.Duration
	Timeout        time.Duration
	ConnTimeout    time.Duration
	MaxIdlePerHost int
	Compression    int
	LoggingLevel   string
}

// loadINIDefaults reads ./dezoomify.ini when it exists and is non-empty;
// otherwise it uses dezoomify.ini under HomeDir (~/.config/dezoomify, or
// ~\dezoomify on Windows), writing a commented template there first if the
// file is missing. The binary's own directory is used only when no home
// directory can be found. A file that cannot be created or read is not an
// error; the built-in defaults apply.
func loadINIDefaults() iniDefaults {
	var d iniDefaults
	path := findConfigPath()
	if path == "" {
		return d
	}
	if err := createConfigIfNotExists(path); err != nil {
		return d
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return d
	}
	dl := cfg.Section("download")
	d.Parallelism = dl.Key("parallelism").MustInt(0)
	d.Retries = dl.Key("retries").MustInt(0)
	d.RetryDelay = dl.Key("retry-delay").MustDuration(0)
	d.Timeout = dl.Key("timeout").MustDuration(0)
	d.ConnTimeout = dl.Key("connect-timeout").MustDuration(0)
	d.MaxIdlePerHost = dl.Key("max-idle-per-host").MustInt(0)

	out := cfg.Section("output")
	d.Compression = out.Key("compression").MustInt(0)
	d.LoggingLevel = out.Key("logging").String()
	return d
}

func findConfigPath() string {
	if dir, err := os.Getwd(); err == nil {
		p := filepath.Join(dir, "dezoomify.ini")
		if fi, err := os.Stat(p); err == nil && fi.Size() > 0 {
			return p
		}
	}
	home := HomeDir()
	if home != "" {
		p := filepath.Join(home, "dezoomify.ini")
		if fi, err := os.Stat(p); err == nil && fi.Size() > 0 {
			return p
		}
		return p // creation target if nothing exists yet
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "dezoomify.ini")
	}
	return ""
}

// DefaultUserAgent is sent on every request unless a dezoomer or --header
// overrides it (§4.6).
func DefaultUserAgent() string { return defaultUserAgent }
