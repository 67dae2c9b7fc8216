package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/gostonefire/hashdb"
	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/joho/godotenv"
)

// Config - Settings of the hashdbd daemon
//   - Addr is the address the HTTP server listens on
//   - Path is the hash db file
//   - Buckets, AlignPow and FreeBlockPow are the tuning used if the file gets created
//   - CacheSize is the record cache capacity, zero disables it
//   - Compression is one of "", "deflate" or "bzip2"
//   - ReadOnly opens the file for reading only
type Config struct {
	Addr         string
	Path         string
	Buckets      int64
	AlignPow     int
	FreeBlockPow int
	CacheSize    int
	Compression  string
	ReadOnly     bool
}

// Load - Returns the configuration from defaults, an optional .env file, HASHDB_* environment variables and
// command line flags, later sources overriding earlier ones.
//   - args is the command line without the program name
func Load(args []string) (cfg Config, err error) {
	err = godotenv.Load(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("error while loading .env: %w", err)
		return
	}

	cfg = Config{
		Addr:         env("HASHDB_ADDR", ":3000"),
		Path:         env("HASHDB_PATH", "hashdb.hdb"),
		Buckets:      hashdb.DefaultBuckets,
		AlignPow:     int(hashdb.DefaultAlignPow),
		FreeBlockPow: int(hashdb.DefaultFreeBlockPow),
		Compression:  env("HASHDB_COMPRESSION", ""),
	}
	if cfg.Buckets, err = envInt("HASHDB_BUCKETS", cfg.Buckets); err != nil {
		return
	}
	var n int64
	if n, err = envInt("HASHDB_ALIGN_POW", int64(cfg.AlignPow)); err != nil {
		return
	}
	cfg.AlignPow = int(n)
	if n, err = envInt("HASHDB_FREE_BLOCK_POW", int64(cfg.FreeBlockPow)); err != nil {
		return
	}
	cfg.FreeBlockPow = int(n)
	if n, err = envInt("HASHDB_CACHE_SIZE", 0); err != nil {
		return
	}
	cfg.CacheSize = int(n)
	if cfg.ReadOnly, err = strconv.ParseBool(env("HASHDB_READ_ONLY", "false")); err != nil {
		err = fmt.Errorf("invalid HASHDB_READ_ONLY: %w", err)
		return
	}

	fset := flag.NewFlagSet("hashdbd", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fset.StringVar(&cfg.Path, "path", cfg.Path, "hash db file")
	fset.Int64Var(&cfg.Buckets, "buckets", cfg.Buckets, "bucket count of a new file")
	fset.IntVar(&cfg.AlignPow, "align-pow", cfg.AlignPow, "alignment power of a new file")
	fset.IntVar(&cfg.FreeBlockPow, "free-block-pow", cfg.FreeBlockPow, "free block pool power of a new file")
	fset.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "record cache capacity, 0 disables it")
	fset.StringVar(&cfg.Compression, "compression", cfg.Compression, "value compression of a new file: deflate or bzip2")
	fset.BoolVar(&cfg.ReadOnly, "read-only", cfg.ReadOnly, "open the file for reading only")
	if err = fset.Parse(args); err != nil {
		return
	}

	err = cfg.validate()

	return
}

// validate - Checks that the tuning fits the ranges accepted by hashdb before it gets narrowed to int8
func (C Config) validate() (err error) {
	if C.Buckets < 1 || C.Buckets > conf.MaxBuckets {
		return fmt.Errorf("buckets must be between 1 and %d, got %d", conf.MaxBuckets, C.Buckets)
	}
	if C.AlignPow < 0 || C.AlignPow > int(conf.MaxAlignPow) {
		return fmt.Errorf("align-pow must be between 0 and %d, got %d", conf.MaxAlignPow, C.AlignPow)
	}
	if C.FreeBlockPow < 0 || C.FreeBlockPow > int(conf.MaxFreeBlockPow) {
		return fmt.Errorf("free-block-pow must be between 0 and %d, got %d", conf.MaxFreeBlockPow, C.FreeBlockPow)
	}
	if C.CacheSize < 0 {
		return fmt.Errorf("cache-size must not be negative, got %d", C.CacheSize)
	}

	_, err = C.Options()

	return
}

// Options - Returns the option bits selected by Compression
func (C Config) Options() (opts hashdb.Opt, err error) {
	switch strings.ToLower(C.Compression) {
	case "", "none":
	case "deflate":
		opts = hashdb.OptDeflate
	case "bzip2":
		opts = hashdb.OptBzip2
	default:
		err = fmt.Errorf("unknown compression %q", C.Compression)
	}

	return
}

// Mode - Returns the open mode selected by ReadOnly
func (C Config) Mode() hashdb.Mode {
	if C.ReadOnly {
		return hashdb.Reader
	}
	return hashdb.Writer | hashdb.Create
}

func env(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envInt(name string, def int64) (n int64, err error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		n = def
		return
	}

	n, err = strconv.ParseInt(v, 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid %s: %w", name, err)
	}

	return
}
