package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/SolarDomo/HttpData/internal/config"
	"github.com/SolarDomo/HttpData/internal/env"
	"github.com/SolarDomo/HttpData/internal/httpdata"
	"github.com/SolarDomo/HttpData/internal/logging"
	"github.com/SolarDomo/HttpData/internal/proxypool"
	"github.com/SolarDomo/HttpData/internal/proxypool/models"
	"github.com/SolarDomo/HttpData/internal/proxypool/storage"
	"github.com/SolarDomo/HttpData/pkg/utils"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

const usage = `usage: httpdata [flags] get|post|stream|shuffle URL

flags:
`

func main() {
	configPath := flag.StringP("config", "c", "", "settings file (yaml, json or toml)")
	data := flag.StringP("data", "d", "", "request body for post")
	name := flag.StringP("name", "n", "", "file name for stream")
	trace := flag.StringP("trace", "t", "", "trace id, generated when empty")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	command, url := flag.Arg(0), flag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger.Logger, cfg, command, url, *data, *name, *trace); err != nil {
		logger.WithField("Error", err).Error("httpdata failed")
		stop()
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *logrus.Logger, cfg *config.File, command, url, data, name, trace string) error {
	environment := env.NewLogrusEnvironment(logger)

	if command == "shuffle" {
		return shuffle(ctx, logger, environment, cfg, url, trace)
	}

	client, err := httpdata.New(environment, cfg.Client)
	if err != nil {
		return err
	}
	defer client.Close()

	switch command {
	case "get":
		r, err := client.GetSuccess(ctx, url, trace)
		if err != nil {
			return err
		}
		return write(os.Stdout, r.Data())
	case "post":
		r, err := client.PostSuccess(ctx, url, []byte(data), trace)
		if err != nil {
			return err
		}
		return write(os.Stdout, r.Data())
	case "stream":
		r, err := client.GetStreamSuccess(ctx, url, name, trace)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\t%d\n", r.Path(), r.Length())
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func shuffle(ctx context.Context, logger *logrus.Logger, environment env.Environment, cfg *config.File, url, trace string) error {
	var identities []*models.Identity
	if len(cfg.Proxies) > 0 {
		st, err := storage.NewDBStorage(cfg.Storage)
		if err != nil {
			return err
		}
		defer st.Close()
		if identities, err = proxypool.LoadIdentities(st, cfg.Proxies, cfg.ProxyUser, cfg.ProxyPassword); err != nil {
			return err
		}
	}

	poolLog := env.NewLogrusEntryLog(logger.WithField("Component", "proxypool"))
	pool := proxypool.New(proxypool.WithLog(poolLog), proxypool.WithLogPrefix("shuffle"))
	pool.Init(identities)

	shuffler := httpdata.NewShuffler(environment, pool, cfg.Client)
	defer shuffler.Close()

	r, ok := shuffler.TryGet(ctx, url, trace)
	if !ok {
		return fmt.Errorf("shuffle get '%s' failed: %v", utils.HideSecrets(url), r.Err)
	}
	return write(os.Stdout, r.Data())
}

func write(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
