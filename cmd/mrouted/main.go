// Command mrouted runs the static IPv4 multicast routing daemon.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mrouted/internal/audit"
	"mrouted/internal/config"
	"mrouted/internal/daemon"
	"mrouted/internal/ldap"
	"mrouted/internal/merrors"
	"mrouted/internal/restapi"
	"mrouted/internal/websocket"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 || os.Args[1] != "simple" {
		fmt.Fprintln(os.Stderr, "usage: mrouted simple --config <path> [--listen addr] [--db path] [--audit-key path] [--ldap-server host] [--ldap-port port] [--ldap-bind-dn dn] [--ldap-bind-password pw] [--ldap-base-dn dn] [--ldap-user-filter filter]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("simple", flag.ExitOnError)
	configPath := fs.String("config", "/etc/mrouted.conf", "path to the INI configuration file")
	listenAddr := fs.String("listen", "127.0.0.1:8745", "REST/websocket listen address")
	dbPath := fs.String("db", "/var/lib/mrouted/mrouted.db", "path to the audit SQLite database")
	auditKeyPath := fs.String("audit-key", "/var/lib/mrouted/audit.key", "path to the audit HMAC key")
	ldapServer := fs.String("ldap-server", "", "LDAP server host for REST auth (optional; auth disabled if empty)")
	ldapPort := fs.Int("ldap-port", 389, "LDAP server port")
	ldapBindDN := fs.String("ldap-bind-dn", "", "service account DN used to search the directory")
	ldapBindPassword := fs.String("ldap-bind-password", "", "service account password")
	ldapBaseDN := fs.String("ldap-base-dn", "", "base DN for user lookups")
	ldapUserFilter := fs.String("ldap-user-filter", "(uid={username})", "user search filter; must contain {username}")
	fs.Parse(os.Args[2:])

	log.Printf("mrouted %s starting", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		log.Printf("failed to open audit database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := audit.InitSchema(db); err != nil {
		log.Printf("audit schema init failed: %v", err)
		os.Exit(1)
	}

	auditKey, err := audit.LoadOrCreateAuditKey(*auditKeyPath)
	if err != nil {
		log.Printf("WARNING: audit HMAC key unavailable (%v) — chain disabled", err)
		auditKey = nil
	}
	auditLogger := audit.NewBufferedLogger(db, 100, 5*time.Second, auditKey)
	auditLogger.Start()
	defer auditLogger.Stop()

	hub := websocket.NewMonitorHub()
	go hub.Run()

	orchestrator, err := daemon.Start(cfg, auditLogger, hub)
	if err != nil {
		exitForKernelErr(err)
	}

	var ldapClient *ldap.Client
	if *ldapServer != "" {
		ldapConfig := &ldap.Config{
			Enabled:         true,
			Server:          *ldapServer,
			Port:            *ldapPort,
			BindDN:          *ldapBindDN,
			BindPassword:    *ldapBindPassword,
			BaseDN:          *ldapBaseDN,
			UserFilter:      *ldapUserFilter,
			UserIDAttribute: "uid",
			Timeout:         10,
		}
		if err := ldap.ValidateConfig(ldapConfig); err != nil {
			log.Printf("WARNING: invalid LDAP configuration (%v) — REST auth disabled", err)
		} else if ldapClient, err = ldap.NewClient(ldapConfig); err != nil {
			log.Printf("WARNING: LDAP client unavailable (%v) — REST auth disabled", err)
			ldapClient = nil
		}
	}

	server := restapi.NewServer(orchestrator, hub, db, auditKey, ldapClient)
	httpServer := &http.Server{
		Addr:         *listenAddr,
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Printf("REST surface listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("REST server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("REST server shutdown error: %v", err)
	}
	orchestrator.Shutdown()
	os.Exit(0)
}

// exitForKernelErr maps a daemon.Start failure to the CLI's documented exit
// codes: 2 for permission errors, 3 for any other kernel-bridge error.
func exitForKernelErr(err error) {
	log.Printf("kernel bridge startup failed: %v", err)
	if merrors.Is(err, merrors.Permission) {
		os.Exit(2)
	}
	os.Exit(3)
}
