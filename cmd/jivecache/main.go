package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/SuperJinggg/jivecache"
)

func main() {
	var (
		listen     = flag.String("listen", ":8080", "HTTP listen address")
		endpoints  = flag.String("etcd", "", "comma separated etcd endpoints, empty for in-memory properties")
		etcdPrefix = flag.String("etcd-prefix", "/jivecache/", "etcd key prefix for cache properties")
		logLevel   = flag.String("log-level", "info", "log level")
		caches     = flag.String("caches", "User,Roster,VCard", "comma separated caches to create at startup")
	)
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "jivecache")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 配置来源
	var (
		source  jivecache.PropertySource = jivecache.NewMapSource(nil)
		etcdSrc *jivecache.EtcdSource
	)
	if *endpoints != "" {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(*endpoints, ","),
			DialTimeout: 5 * time.Second,
			DialOptions: []grpc.DialOption{grpc.WithUserAgent("jivecache")},
			Logger:      zap.NewNop(),
		})
		if err != nil {
			log.WithError(err).Fatal("failed to create etcd client")
		}
		defer cli.Close()

		etcdSrc = jivecache.NewEtcdSource(cli, cli, *etcdPrefix, log)
		source = etcdSrc
	}

	registry := jivecache.NewRegistry(source, &jivecache.Options{Logger: log})
	for _, name := range strings.Split(*caches, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if _, err := registry.Cache(ctx, name); err != nil {
			log.WithError(err).WithField("cache", name).Fatal("failed to create cache")
		}
	}

	if etcdSrc != nil {
		go func() {
			if err := etcdSrc.Watch(ctx, registry); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("property watch stopped")
			}
		}()
	}

	reg := prometheus.NewRegistry()
	if err := jivecache.RegisterMetrics(reg, registry); err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Stats()); err != nil {
			log.WithError(err).Warn("failed to write stats")
		}
	})

	srv := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("listen", *listen).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server failed")
	}
	log.Info("server stopped")
}
