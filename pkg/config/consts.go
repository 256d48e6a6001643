package config

// EnvPrefix namespaces every environment variable read by envconfig.
const EnvPrefix = "COURSEWARE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv  = "COURSEWARE_APP_ENV"
	EnvAppPort = "COURSEWARE_APP_PORT"
)

const (
	EnvDBDSN  = "COURSEWARE_DB_DSN"
	EnvDBHost = "COURSEWARE_DB_HOST"
	EnvDBUser = "COURSEWARE_DB_USER"
	EnvDBName = "COURSEWARE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
