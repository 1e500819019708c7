package main

import (
	"context"
	"log"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/storage/cachestore/redisstore"
	"github.com/trezcool/swcache/storage/cachestore/sqlstore"
	"github.com/trezcool/swcache/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	cli := commandLine{conf: conf, out: os.Stdout}

	// set up the cache store
	switch conf.Cache.Store {
	case "database":
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)
		defer db.Close()
		errAndDie(db.Ping())
		cli.db, cli.store = db, sqlstore.New(db)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer client.Close()
		errAndDie(client.Ping(context.Background()).Err())
		cli.store = redisstore.New(client, conf.Redis.Prefix)
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
