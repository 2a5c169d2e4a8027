// Command pullsync serves a directory of files
// and pulls from such a server the files a local directory lacks.
//
// Usage:
//
//	pullsync [-config FILE] serve [-addr :9090] [-root server/files] [-recursive] [-concurrent [-max-conns N]]
//	pullsync [-config FILE] client [-addr 127.0.0.1:9090] [-root client/files] [-recursive] [-verify]
//	pullsync [-config FILE] sync [-addr 127.0.0.1:9090] [-root client/files] [-recursive] [-verify]
//	pullsync [-config FILE] ls [-root DIR] [-recursive]
//	pullsync -config FILE cache-ls
//
// The client subcommand runs an interactive menu of the four protocol commands:
// LIST, DIFF, PULL, and LEAVE.
// The sync subcommand runs all four once.
//
// The optional config file is JSON,
// or TOML if its name ends in .toml.
// Its "source" section, if present,
// replaces the directory given by -root as the inventory provider
// (e.g. {"type": "gcs", "bucket": "...", "prefix": "..."}).
// Its "cache" section configures a digest cache for the directory provider
// (e.g. {"type": "sqlite3", "conn": "digests.db"}).
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/bobg/subcmd"

	_ "github.com/bobg/pullsync/cache/logging"
	_ "github.com/bobg/pullsync/cache/lru"
	_ "github.com/bobg/pullsync/cache/mem"
	_ "github.com/bobg/pullsync/cache/pg"
	_ "github.com/bobg/pullsync/cache/sqlite3"
	_ "github.com/bobg/pullsync/source/gcs"
)

type maincmd struct {
	conf   map[string]interface{}
	stdout io.Writer
}

func main() {
	config := flag.String("config", "", "path to config file (JSON, or TOML if it ends in .toml)")
	flag.Parse()

	c := maincmd{stdout: os.Stdout}
	if *config != "" {
		conf, err := loadConfig(*config)
		if err != nil {
			log.Fatal(err)
		}
		c.conf = conf
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := subcmd.Run(ctx, c, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"cache-ls", c.cacheLs, nil,
		"client", c.client, clientParams(),
		"ls", c.ls, subcmd.Params(
			"root", subcmd.String, "client/files", "directory to list",
			"recursive", subcmd.Bool, false, "include files in subdirectories",
		),
		"serve", c.serve, subcmd.Params(
			"addr", subcmd.String, ":9090", "listen address",
			"root", subcmd.String, "server/files", "directory of files to serve",
			"recursive", subcmd.Bool, false, "serve files in subdirectories too",
			"concurrent", subcmd.Bool, false, "serve clients in parallel",
			"max-conns", subcmd.Int, 0, "with -concurrent, limit on simultaneous clients (0 for none)",
		),
		"sync", c.sync, clientParams(),
	)
}

// clientParams are the flags of the client and sync subcommands.
func clientParams() []subcmd.Param {
	return subcmd.Params(
		"addr", subcmd.String, "127.0.0.1:9090", "server address",
		"root", subcmd.String, "client/files", "directory to pull files into",
		"recursive", subcmd.Bool, false, "include files in subdirectories when comparing",
		"verify", subcmd.Bool, false, "check the digest of each pulled file",
	)
}
