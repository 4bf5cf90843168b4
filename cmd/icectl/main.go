// Command icectl inspects and manipulates persisted values.
//
// It encodes and decodes ice file names, stores, loads and deletes values on any
// configured backend, resolves external addresses, and reports capacity.
//
// Example usage:
//
//	icectl --ice-root=/var/lib/ice encode 0261 62
//	icectl decode '%02%ab'
//	icectl --ice-root=/var/lib/ice store --vec=frame --chunk=3 ./chunk.bin
//	icectl --ice-root=/var/lib/ice --hdfs-namenode=nn:8020 resolve --cat hdfs:///data/frame.csv
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mplewis/persist"
	"github.com/mplewis/persist/logging"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "YAML configuration file; flags override its values",
		EnvVars: []string{"ICE_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "ice-root",
		Usage:   "node-local spill location: a directory, file:// or hdfs:// URI",
		EnvVars: []string{"ICE_ROOT"},
	},
	&cli.BoolFlag{
		Name:  "verify-names",
		Usage: "check the key/file-name round trip on every spill access",
	},
	&cli.StringFlag{
		Name:    "hdfs-namenode",
		Usage:   "default HDFS namenode address",
		EnvVars: []string{"ICE_HDFS_NAMENODE"},
	},
	&cli.StringFlag{
		Name:    "hdfs-user",
		Usage:   "HDFS user name",
		EnvVars: []string{"HADOOP_USER_NAME"},
	},
	&cli.StringFlag{
		Name:  "s3-bucket",
		Usage: "bucket for values spilled to S3",
	},
	&cli.StringFlag{
		Name:  "s3-prefix",
		Usage: "object name prefix for values spilled to S3",
	},
	&cli.StringFlag{
		Name:    "s3-region",
		Usage:   "S3 region",
		EnvVars: []string{"AWS_REGION"},
	},
	&cli.StringFlag{
		Name:  "s3-endpoint",
		Usage: "custom endpoint for S3-compatible stores",
	},
	&cli.BoolFlag{
		Name:  "s3-path-style",
		Usage: "use path-style S3 addressing",
	},
	&cli.StringFlag{
		Name:  "nfs-root",
		Usage: "spill directory on the shared network filesystem",
	},
	&cli.StringFlag{
		Name:    "redis-addr",
		Usage:   "Redis address for cross-node NFS write locks",
		EnvVars: []string{"ICE_REDIS_ADDR"},
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add it as 'uid' to all logs",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "icectl",
		Usage: "add 'service' tag to logs",
	},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "icectl",
		Usage: "Inspect and manipulate persisted values",
		Flags: flags,
		Before: func(cCtx *cli.Context) error {
			_, err := logging.New(logging.Opts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				UID:     cCtx.Bool("log-uid"),
			})
			return err
		},
		After: func(cCtx *cli.Context) error {
			_ = zap.L().Sync()
			return nil
		},
		Commands: []*cli.Command{
			encodeCommand,
			decodeCommand,
			storeCommand,
			loadCommand,
			deleteCommand,
			resolveCommand,
			listCommand,
			spaceCommand,
		},
	}
}

// loadConfig merges the configuration file with command-line flags.
func loadConfig(cCtx *cli.Context) (persist.Config, error) {
	var cfg persist.Config
	if path := cCtx.String("config"); path != "" {
		var err error
		if cfg, err = persist.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	setString := func(name string, dst *string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.String(name)
		}
	}
	setString("ice-root", &cfg.IceRoot)
	setString("hdfs-namenode", &cfg.HDFS.Namenode)
	setString("hdfs-user", &cfg.HDFS.User)
	setString("s3-bucket", &cfg.S3.Bucket)
	setString("s3-prefix", &cfg.S3.Prefix)
	setString("s3-region", &cfg.S3.Region)
	setString("s3-endpoint", &cfg.S3.Endpoint)
	setString("nfs-root", &cfg.NFS.Root)
	setString("redis-addr", &cfg.Redis.Addr)
	if cCtx.IsSet("verify-names") {
		cfg.VerifyNames = cCtx.Bool("verify-names")
	}
	if cCtx.IsSet("s3-path-style") {
		cfg.S3.PathStyle = cCtx.Bool("s3-path-style")
	}
	return cfg, nil
}

// openRegistry builds the registry for a command.
func openRegistry(cCtx *cli.Context) (*persist.Registry, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	if cfg.IceRoot == "" {
		return nil, cli.Exit("no ice root configured, set --ice-root or ice_root in --config", 2)
	}
	return persist.New(cCtx.Context, cfg, persist.WithLogger(zap.L()))
}
