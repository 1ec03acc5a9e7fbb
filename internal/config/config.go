package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Quiz sessions
	SubmitPolicy       string // last|anytime
	LedgerRetries      int
	LedgerRetryBackoff time.Duration
	LedgerWriteTimeout time.Duration
	SessionIdleTTL     time.Duration

	// Grade passback (LTI AGS)
	EnableGradebook     bool
	AGSLineItemsURL     string
	AGSTokenURL         string
	AGSClientID         string
	AGSClientSecret     string
	GradebookInterval   time.Duration
	GradebookMaxRetries int
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           addr,
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://lms.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010,http://localhost:3020"),

		SubmitPolicy:       strings.ToLower(envOr("SUBMIT_POLICY", "last")),
		LedgerRetries:      envInt("LEDGER_RETRIES", 2),
		LedgerRetryBackoff: time.Duration(envInt("LEDGER_RETRY_BACKOFF_MS", 250)) * time.Millisecond,
		LedgerWriteTimeout: time.Duration(envInt("LEDGER_WRITE_TIMEOUT_SEC", 10)) * time.Second,
		SessionIdleTTL:     time.Duration(envInt("SESSION_IDLE_TTL_MIN", 120)) * time.Minute,

		EnableGradebook:     envBool("ENABLE_GRADEBOOK", false),
		AGSLineItemsURL:     os.Getenv("AGS_LINEITEMS_URL"),
		AGSTokenURL:         os.Getenv("AGS_TOKEN_URL"),
		AGSClientID:         os.Getenv("AGS_CLIENT_ID"),
		AGSClientSecret:     os.Getenv("AGS_CLIENT_SECRET"),
		GradebookInterval:   time.Duration(envInt("GRADEBOOK_SYNC_INTERVAL_SEC", 60)) * time.Second,
		GradebookMaxRetries: envInt("GRADEBOOK_MAX_RETRIES", 5),
	}
}

// CORSOrigins picks the origin list for the running mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

// envInt falls back to def when unset, malformed or negative.
func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil || n < 0 {
		return def
	}
	return n
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
