package config

import "time"

// DefaultPollInterval is the periodic sync cadence when unconfigured
// (spec.md §2: "every ~10 min").
const DefaultPollInterval = 10 * time.Minute

// DefaultHTTPTimeout bounds a single server request when unconfigured.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultLogLevel is used when neither the config file nor CLI flags set one.
const DefaultLogLevel = "warn"

// configFilePermissions matches spec.md §4.2: the config file is sensitive
// (carries the shared password) and must not be group/other readable.
const configFilePermissions = 0o600

// configDirPermissions is the permission mode for the state directory tree.
const configDirPermissions = 0o700
