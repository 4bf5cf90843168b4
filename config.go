package persist

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the startup configuration of a Registry.
type Config struct {
	// IceRoot is the location of node-local spill storage: a directory, a
	// file:// URI or an hdfs:// URI. When empty the registry stays empty.
	IceRoot string `yaml:"ice_root"`
	// VerifyNames checks the key/file-name round trip on every spill access.
	VerifyNames bool        `yaml:"verify_names"`
	HDFS        HDFSConfig  `yaml:"hdfs"`
	S3          S3Config    `yaml:"s3"`
	NFS         NFSConfig   `yaml:"nfs"`
	Redis       RedisConfig `yaml:"redis"`
}

// HDFSConfig configures the HDFS backend.
type HDFSConfig struct {
	Namenode string `yaml:"namenode"`
	User     string `yaml:"user"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// NFSConfig configures the network filesystem backend.
type NFSConfig struct {
	Root string `yaml:"root"`
}

// RedisConfig enables cross-node write locks for the NFS backend.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	LockExpiry time.Duration `yaml:"lock_expiry"`
}

// LoadConfig reads a YAML configuration file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
