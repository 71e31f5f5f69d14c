package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	Version = "1.0.0"

	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) dezoomify-go/1.0"
	defaultDezoomer    = "auto"
	defaultParallelism = 16
	defaultRetries     = 1
	defaultRetryDelay  = 2 * time.Second
	defaultTimeout     = 30 * time.Second
	defaultConnTimeout = 6 * time.Second
	defaultMaxIdleHost = 32
	defaultCompression = 0
	defaultLogLevel    = "info"
)

func UserHomeDir() string {
	if os.PathSeparator == '\\' {
		home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		if home == "" {
			home = os.Getenv("USERPROFILE")
		}
		return home
	}
	return os.Getenv("HOME")
}

// HomeDir is where the optional INI config file lives by default:
// ~/.config/dezoomify on Unix, ~\dezoomify on Windows. The tile cache has no
// default location; it is used only where --tile-cache names a directory.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return home
	}
	if os.PathSeparator == '\\' {
		return filepath.Join(home, "dezoomify")
	}
	return filepath.Join(home, ".config", "dezoomify")
}
