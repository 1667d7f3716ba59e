package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/svanichkin/pngraw"
	"github.com/svanichkin/pngraw/internal/logging"
	"github.com/svanichkin/pngraw/s3source"
)

type Config struct {
	LogLevel  zerolog.Level
	PrettyLog bool
	Decode    DecodeConfig
	S3        S3Config
}

type DecodeConfig struct {
	Strict            bool
	VerifyChecksums   bool
	Parallel          bool
	Modes             pngraw.ModeSet
	InflateBufferSize int
}

type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Retries      int
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func (c S3Config) Client() s3source.ClientConfig {
	return s3source.ClientConfig{
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		UsePathStyle: c.UsePathStyle,
	}
}

func (c S3Config) SourceOptions() *s3source.Options {
	return &s3source.Options{
		Retries:    c.Retries,
		MinBackoff: c.MinBackoff,
		MaxBackoff: c.MaxBackoff,
	}
}

func Default() Config {
	return Config{
		LogLevel:  zerolog.InfoLevel,
		PrettyLog: true,
		Decode: DecodeConfig{
			Modes:             pngraw.DefaultModes,
			InflateBufferSize: pngraw.DefaultInflateBufferSize,
		},
		S3: S3Config{
			Region:     "us-east-1",
			Retries:    s3source.DefaultOptions.Retries,
			MinBackoff: s3source.DefaultOptions.MinBackoff,
			MaxBackoff: s3source.DefaultOptions.MaxBackoff,
		},
	}
}

// FromEnv returns Default() overridden by PNGRAW_* variables.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	e := envReader{lookup: lookup}

	if v, ok := lookup("PNGRAW_LOG_LEVEL"); ok {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("PNGRAW_LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}
	e.bool("PNGRAW_PRETTY_LOG", &c.PrettyLog)

	e.bool("PNGRAW_STRICT", &c.Decode.Strict)
	e.bool("PNGRAW_VERIFY_CRC", &c.Decode.VerifyChecksums)
	e.bool("PNGRAW_PARALLEL", &c.Decode.Parallel)
	e.int("PNGRAW_INFLATE_BUFFER", &c.Decode.InflateBufferSize)
	if v, ok := lookup("PNGRAW_MODES"); ok {
		modes, err := pngraw.ParseModeSet(v)
		if err != nil {
			return Config{}, fmt.Errorf("PNGRAW_MODES: %w", err)
		}
		c.Decode.Modes = modes
	}

	e.str("PNGRAW_S3_REGION", &c.S3.Region)
	e.str("PNGRAW_S3_ENDPOINT", &c.S3.Endpoint)
	e.str("PNGRAW_S3_ACCESS_KEY", &c.S3.AccessKey)
	e.str("PNGRAW_S3_SECRET_KEY", &c.S3.SecretKey)
	e.bool("PNGRAW_S3_PATH_STYLE", &c.S3.UsePathStyle)
	e.int("PNGRAW_S3_RETRIES", &c.S3.Retries)
	e.duration("PNGRAW_S3_MIN_BACKOFF", &c.S3.MinBackoff)
	e.duration("PNGRAW_S3_MAX_BACKOFF", &c.S3.MaxBackoff)

	if e.err != nil {
		return Config{}, e.err
	}
	return c, nil
}

// DecodeOptions builds decoder options for one decode.
func (c Config) DecodeOptions(logger *zerolog.Logger, observer pngraw.Observer) *pngraw.Options {
	return &pngraw.Options{
		Logger:            logger,
		Observer:          observer,
		Modes:             c.Decode.Modes,
		VerifyChecksums:   c.Decode.VerifyChecksums,
		Strict:            c.Decode.Strict,
		Parallel:          c.Decode.Parallel,
		InflateBufferSize: c.Decode.InflateBufferSize,
	}
}

// envReader keeps the first parse error so call sites stay flat.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(name)
	return strings.TrimSpace(v), ok
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = d
	}
}
