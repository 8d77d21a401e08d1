package config

// EnvPrefix is passed to envconfig; the explicit envconfig tags already carry
// the full variable names, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "POSHOBEX_APP_ENV"
	EnvPort     = "POSHOBEX_APP_PORT"
	EnvDBDSN    = "POSHOBEX_DB_DSN"
	EnvDBHost   = "POSHOBEX_DB_HOST"
	EnvDBUser   = "POSHOBEX_DB_USER"
	EnvDBName   = "POSHOBEX_DB_NAME"
	EnvRedisURL = "POSHOBEX_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
