package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mcp-relay/pkg/api"
	"mcp-relay/pkg/db"
	"mcp-relay/pkg/hash"
	"mcp-relay/pkg/relay"
	"mcp-relay/pkg/store"
	"mcp-relay/pkg/version"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	salt := flag.String("hash-salt", os.Getenv("RELAY_HASH_SALT"), "salt for credential fingerprints (env RELAY_HASH_SALT)")
	storeType := flag.String("store", "memory", "directory backend: memory|consul (consul requires build tag consul)")
	consulAddr := flag.String("consul-addr", "127.0.0.1:8500", "consul address (when store=consul)")
	withMySQL := flag.Bool("mysql", false, "enable the admin API backed by MySQL (MYSQL_* env)")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Infof("relay version=%s", version.Build)
		return
	}
	if *salt == "" {
		log.Fatal("hash salt is required (flag --hash-salt or env RELAY_HASH_SALT)")
	}

	var dir store.Directory
	switch *storeType {
	case "consul":
		var errStore error
		dir, errStore = store.NewConsulDirectory(*consulAddr)
		if errStore != nil {
			log.WithError(errStore).Fatal("consul directory init failed")
		}
	case "memory":
		dir = store.NewMemoryDirectory()
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	var gdb *gorm.DB
	if *withMySQL || os.Getenv("MYSQL_DSN") != "" {
		var err error
		gdb, err = db.Init()
		if err != nil {
			log.WithError(err).Fatal("mysql init failed")
		}
	}
	server := api.NewServer(relay.NewHub(dir), hash.NewService(*salt), dir, gdb)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithField("addr", *addr).Infof("relay listening, version=%s", version.Build)
	var err error
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			cfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.WithError(errTLS).Fatal("failed to build TLS config")
			}
			srv.TLSConfig = cfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.WithError(err).Fatal("server error")
	}
}
